package packager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/alexmullins/zip"
	"github.com/pkg/errors"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/utils"
)

// Writes the collector archive. Members are hashed as they are
// written so the manifest can list them.
type Container struct {
	fd  io.WriteCloser
	zip *zip.Writer

	Password     string
	delegate_zip *zip.Writer

	files []services.ManifestFile
}

func NewContainer(fd io.WriteCloser, password string) *Container {
	return &Container{
		fd:       fd,
		zip:      zip.NewWriter(fd),
		Password: password,
	}
}

func (self *Container) getZipFileWriter(name string) (io.Writer, error) {
	if self.Password == "" {
		return self.zip.Create(name)
	}

	// Zip file encryption is not great because it only encrypts
	// the content of the file, and not its directory. We want to
	// do better than that - so we create another zip file inside
	// the original zip file and encrypt that.
	if self.delegate_zip == nil {
		fd, err := self.zip.Encrypt("data.zip", self.Password)
		if err != nil {
			return nil, err
		}
		self.delegate_zip = zip.NewWriter(fd)
	}

	return self.delegate_zip.Create(name)
}

// Copy reader into a new member called name.
func (self *Container) WriteFile(
	ctx context.Context, name string, reader io.Reader) (*services.ManifestFile, error) {
	writer, err := self.getZipFileWriter(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return self.copy(ctx, writer, name, reader)
}

// Write a member that is never encrypted. Must be called before any
// call to WriteFile() when a password is set.
func (self *Container) WritePlainFile(
	ctx context.Context, name string, reader io.Reader) (*services.ManifestFile, error) {
	if self.delegate_zip != nil {
		return nil, errors.New("plain members must be written first")
	}

	writer, err := self.zip.Create(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return self.copy(ctx, writer, name, reader)
}

func (self *Container) copy(ctx context.Context, writer io.Writer,
	name string, reader io.Reader) (*services.ManifestFile, error) {

	sha_sum := sha256.New()
	n, err := utils.Copy(ctx, io.MultiWriter(writer, sha_sum), reader)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}

	file := services.ManifestFile{
		Path:   name,
		Size:   n,
		Sha256: hex.EncodeToString(sha_sum.Sum(nil)),
	}
	self.files = append(self.files, file)
	return &file, nil
}

// Members written so far in order.
func (self *Container) Files() []services.ManifestFile {
	return append([]services.ManifestFile{}, self.files...)
}

// The underlying file is closed even when flushing the zip fails.
func (self *Container) Close() error {
	var err error
	if self.delegate_zip != nil {
		err = self.delegate_zip.Close()
	}

	zip_err := self.zip.Close()
	if err == nil {
		err = zip_err
	}

	fd_err := self.fd.Close()
	if err == nil {
		err = fd_err
	}
	return err
}
