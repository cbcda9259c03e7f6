package cococonv

// Darknet specific functionality.

import (
	"bufio"
	"fmt"
	"iter"
	"os"
)

// DarknetLabel is a single object label within a Darknet label file. The box is given by its
// centre, width and height as ratios of the image size.
type DarknetLabel struct {
	Class  int // Zero based index into the names file.
	CX     float64
	CY     float64
	Width  float64
	Height float64
}

// String formats l as a line of a Darknet label file, without the line break.
func (l DarknetLabel) String() string {
	return fmt.Sprintf("%d %.5f %.5f %.5f %.5f", l.Class, l.CX, l.CY, l.Width, l.Height)
}

// WriteDarknetLabels writes one line per label to the file at path and returns the number of
// labels written. An empty sequence produces an empty file.
func WriteDarknetLabels(path string, labels iter.Seq[DarknetLabel]) (n int, err error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, &IOError{Op: "create", Path: path, Err: err}
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for l := range labels {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return n, &IOError{Op: "write", Path: path, Err: err}
		}
		n++
	}
	if err := w.Flush(); err != nil {
		return n, &IOError{Op: "write", Path: path, Err: err}
	}

	return n, nil
}

// WriteDarknetNames writes the class names to the file at path, one per line, in the given
// order.
func WriteDarknetNames(path string, names []string) error {
	return writeLines(path, names)
}

// WriteDarknetData writes a Darknet data file describing the dataset at path. All paths are
// written as given.
func WriteDarknetData(path string, numClasses int, trainList, valList, namesFile, backupDir string) error {
	return writeLines(path, []string{
		fmt.Sprintf("classes = %d", numClasses),
		"train = " + trainList,
		"valid = " + valList,
		"names = " + namesFile,
		"backup = " + backupDir,
	})
}

// writeLines writes each element of lines followed by a line break to the file at path.
func writeLines(path string, lines []string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return &IOError{Op: "write", Path: path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}

	return nil
}

// imageList appends image paths to a Darknet list file (train.txt, val.txt).
type imageList struct {
	path string
	file *os.File
	w    *bufio.Writer
	n    int
}

func createImageList(path string) (*imageList, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, &IOError{Op: "create", Path: path, Err: err}
	}
	return &imageList{path: path, file: file, w: bufio.NewWriter(file)}, nil
}

// add appends imagePath as a new line.
func (l *imageList) add(imagePath string) error {
	if _, err := fmt.Fprintln(l.w, imagePath); err != nil {
		return &IOError{Op: "write", Path: l.path, Err: err}
	}
	l.n++
	return nil
}

// Close flushes the buffered lines and closes the file.
func (l *imageList) Close() error {
	err := l.w.Flush()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &IOError{Op: "write", Path: l.path, Err: err}
	}
	return nil
}
