package logging

import (
	"path/filepath"
	"time"

	rotatelogs "github.com/Velocidex/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	config_proto "github.com/Ununp3ntium115/Velociraptor-scripts-sub002/config/proto"
)

// Send all log levels to a rotating JSON log file in addition to the
// console.
func AddLogFile(config_obj *config_proto.Config, filename string) error {
	max_age := 7 * 24 * time.Hour
	rotation_time := 24 * time.Hour
	if config_obj != nil && config_obj.Logging != nil {
		if config_obj.Logging.MaxAge > 0 {
			max_age = time.Duration(config_obj.Logging.MaxAge) * time.Second
		}
		if config_obj.Logging.RotationTime > 0 {
			rotation_time = time.Duration(
				config_obj.Logging.RotationTime) * time.Second
		}
	}

	base, err := filepath.Abs(filename)
	if err != nil {
		return err
	}

	writer, err := rotatelogs.New(
		base+".%Y%m%d",
		rotatelogs.WithLinkName(base),
		rotatelogs.WithMaxAge(max_age),
		rotatelogs.WithRotationTime(rotation_time))
	if err != nil {
		return err
	}

	hook := lfshook.NewHook(lfshook.WriterMap{
		logrus.DebugLevel: writer,
		logrus.InfoLevel:  writer,
		logrus.WarnLevel:  writer,
		logrus.ErrorLevel: writer,
		logrus.FatalLevel: writer,
		logrus.PanicLevel: writer,
	}, &logrus.JSONFormatter{DisableHTMLEscape: true})

	getManager(config_obj).AddHook(hook)
	return nil
}
