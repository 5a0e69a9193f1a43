package packager

import (
	"fmt"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
)

// Fatal to the build. Nothing is left at Path.
type PackagingError struct {
	Path string
	Err  error
}

func (self *PackagingError) Error() string {
	return fmt.Sprintf("packaging %v: %v", self.Path, self.Err)
}

func (self *PackagingError) Unwrap() error {
	return self.Err
}

func (self *PackagingError) Issue() services.Issue {
	return services.Issue{
		Kind:    services.KIND_PACKAGING_ERROR,
		Message: self.Error(),
	}
}
