package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means no usable credential was configured.
	ErrConfiguration = errors.New("configuration error: no valid API key found")

	// ErrServiceUnavailable is returned once every attempt across the
	// credential pool has failed.
	ErrServiceUnavailable = errors.New("service unavailable: no credential could reach the model")

	// ErrStreamInterrupted is returned when a stream fails after text was
	// already delivered to the caller.
	ErrStreamInterrupted = errors.New("response stream interrupted")

	// ErrContentExtraction marks a single chunk whose text could not be read.
	// Consumers skip the chunk and keep draining the stream.
	ErrContentExtraction = errors.New("chunk has no readable text")
)

type ErrorKind int

const (
	KindUnclassified ErrorKind = iota
	// KindTransient covers overload signals; retried on the same credential.
	KindTransient
	// KindCredential covers quota, invalid key and rate limit; rotates.
	KindCredential
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindCredential:
		return "credential"
	default:
		return "unclassified"
	}
}

// ClassifiedError carries the provider failure together with its retry class.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

func Classify(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: kind, Err: err}
}

// KindOf returns the retry class attached to err, KindUnclassified if none.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnclassified
}
