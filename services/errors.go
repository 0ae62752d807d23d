package services

import (
	"errors"

	"github.com/motionapp/motion-server/apperrors"
	"gorm.io/gorm"
)

// lookupError turns a missing row into NotFound and anything else into Internal.
func lookupError(err error, notFoundMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(notFoundMsg)
	}
	return apperrors.Internal("database error", err)
}

func dbError(msg string, err error) error {
	return apperrors.Internal(msg, err)
}
