package tempfile

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"
)

var (
	gTracker = &TmpFileTracker{
		files: make(map[string]*TmpFile),
	}
)

type TmpFile struct {
	name               string
	callsite_added     string
	callsite_removed   string
	created, destroyed time.Time
	err                error
}

// Keeps track of every temporary file handed out so leaks are
// visible: a file that was added but never removed is outstanding.
type TmpFileTracker struct {
	mu    sync.Mutex
	files map[string]*TmpFile
}

func (self *TmpFileTracker) scan() {
	// Forget files that were removed more than a minute ago, but
	// always keep tmpfiles that are in use.
	if len(self.files) > 20 {
		cutoff := time.Now().Add(-time.Minute)

		var expired []string
		for k, v := range self.files {
			if !v.destroyed.IsZero() && v.destroyed.Before(cutoff) {
				expired = append(expired, k)
			}
		}

		for _, k := range expired {
			delete(self.files, k)
		}
	}
}

func (self *TmpFileTracker) AddTmpFile(filename string) {
	self.mu.Lock()
	defer self.mu.Unlock()

	callsite := ""
	_, file, no, ok := runtime.Caller(2)
	if ok {
		callsite = fmt.Sprintf("%s#%d", file, no)
	}

	self.files[filename] = &TmpFile{
		name:           filename,
		created:        time.Now(),
		callsite_added: callsite,
	}
	self.scan()
}

func (self *TmpFileTracker) RemoveTmpFile(filename string, err error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	callsite := ""
	_, file, no, ok := runtime.Caller(2)
	if ok {
		callsite = fmt.Sprintf("%s#%d", file, no)
	}

	record, pres := self.files[filename]
	if !pres {
		record = &TmpFile{name: filename}
	}

	record.destroyed = time.Now()
	record.err = err
	record.callsite_removed = callsite

	self.files[filename] = record
	self.scan()
}

// Names of tmpfiles that were created but not yet removed.
func (self *TmpFileTracker) Outstanding() []string {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []string{}
	for k, v := range self.files {
		if v.destroyed.IsZero() {
			result = append(result, k)
		}
	}
	sort.Strings(result)
	return result
}

func AddTmpFile(filename string) {
	gTracker.AddTmpFile(filename)
}

func RemoveTmpFile(filename string, err error) {
	gTracker.RemoveTmpFile(filename, err)
}

func Outstanding() []string {
	return gTracker.Outstanding()
}

// Create a tracked tempfile in a specific directory. Used when the
// file must later be renamed on the same filesystem.
func TempFileIn(dir, pattern string) (*os.File, error) {
	fd, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	AddTmpFile(fd.Name())
	return fd, nil
}

// Remove a tempfile (if it still exists) and record its removal.
func RemoveTempFile(filename string) error {
	err := os.Remove(filename)
	if os.IsNotExist(err) {
		err = nil
	}
	RemoveTmpFile(filename, err)
	return err
}

// The file was renamed into its final place so it no longer needs
// to be removed.
func Claim(filename string) {
	RemoveTmpFile(filename, nil)
}
