package logging

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileAppender writes console formatted lines to a size rotated file.
type FileAppender struct {
	*ConsoleAppender
	file *lumberjack.Logger
}

// NewFileAppender appends to filename, rotating it once it grows past maxSizeMB and keeping
// maxBackups compressed copies.
func NewFileAppender(filename string, maxSizeMB, maxBackups int) *FileAppender {
	file := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return &FileAppender{ConsoleAppender: NewWriterAppender(file), file: file}
}

// Close closes the current file.
func (fa *FileAppender) Close() error {
	return fa.file.Close()
}
