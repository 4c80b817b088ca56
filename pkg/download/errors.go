package download

import (
	"fmt"

	"github.com/modelget/rget/pkg/client"
)

func errNoDirectory(folder string) error {
	e := client.NewError(client.KindNoDestination, "No directory to save model to.", nil)
	if folder != "" {
		e.Message = fmt.Sprintf("No directory to save model to: %s does not exist or is not a directory.", folder)
	}
	return e
}

func errNoFilename() error {
	return client.NewError(client.KindNoDestination, "Could not get a file path to place saved file.", nil)
}

func errDestinationNotFile(path string) error {
	return client.NewError(client.KindNoDestination,
		fmt.Sprintf("Could not save file to %s: it exists and is not a regular file.", path), nil)
}

func errDestinationExists(path string) error {
	return client.NewError(client.KindDestinationExists,
		fmt.Sprintf("File %s already exists! Download will not proceed.", path), nil)
}

func errSizeUnknown() error {
	return client.NewError(client.KindSizeUnknown,
		"Could not get file size from the server. If the server is not having network issues, "+
			"this can happen if you do not provide an API key.", nil)
}

func errIO(op, path string, err error) error {
	return client.NewError(client.KindIOFailure, fmt.Sprintf("%s %s: %v", op, path, err), err)
}

func errSizeMismatch(path, url string, expected, actual int64) error {
	return client.NewError(client.KindSizeMismatchWarning, fmt.Sprintf(
		"File is not the correct size: %s. Expected %d, got %d. The file may be corrupt. "+
			"If you encounter issues, you can try again later or download the file manually: %s",
		path, expected, actual, url), nil)
}
