package domain

import "io"

// SubmissionOutcome is what the processing endpoint reports for one submitted file.
type SubmissionOutcome struct {
	DocumentID      string
	Status          DocumentStatus
	DocumentType    string
	Department      string
	Confidence      float64
	Method          ClassificationMethod
	ProcessingError string
}

func (o SubmissionOutcome) Processed() bool {
	return o.Status == StatusProcessed && o.ProcessingError == ""
}

// SourceFile is a local file offered for submission.
type SourceFile struct {
	Name      string
	Size      int64
	MediaType string
	Open      func() (io.ReadCloser, error)
}
