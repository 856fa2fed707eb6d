package transport

import (
	"github.com/goliatone/go-authcore/core"
	goerrors "github.com/goliatone/go-errors"
)

// transportError builds a go-errors value for failures raised before a token
// endpoint answers. source may be nil.
func transportError(source error, category goerrors.Category, status int, message string, metadata map[string]any) error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, category, message)
	} else {
		err = goerrors.New(message, category)
	}
	err = err.WithCode(status).WithTextCode(textCodeFor(category))
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func textCodeFor(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.AuthcoreErrorBadInput
	case goerrors.CategoryExternal:
		return core.AuthcoreErrorServiceFailure
	case core.CategoryCancelled:
		return core.AuthcoreErrorCancelled
	}
	return core.AuthcoreErrorInternal
}
