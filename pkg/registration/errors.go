package registration

import (
	"errors"
	"fmt"
)

// Kind identifies the pipeline step that failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindJobNotFound
	KindSeriesNotFound
	KindStorageListingFailed
	KindCatalogRegistrationFailed
	KindAlreadyRegistered
	KindDataAccessFailed
	KindPersistFailed
)

func (k Kind) String() string {
	switch k {
	case KindJobNotFound:
		return "job not found"
	case KindSeriesNotFound:
		return "series not found"
	case KindStorageListingFailed:
		return "storage listing failed"
	case KindCatalogRegistrationFailed:
		return "catalog registration failed"
	case KindAlreadyRegistered:
		return "job already registered"
	case KindDataAccessFailed:
		return "data access failed"
	case KindPersistFailed:
		return "persist failed"
	default:
		return "unknown"
	}
}

// Category groups kinds by how callers should react.
type Category string

const (
	CategoryNotFound            Category = "not_found"
	CategoryUpstreamUnavailable Category = "upstream_unavailable"
	CategoryConflict            Category = "conflict"
	CategoryInternal            Category = "internal"
)

// Category returns the caller-facing class of k.
func (k Kind) Category() Category {
	switch k {
	case KindJobNotFound, KindSeriesNotFound:
		return CategoryNotFound
	case KindStorageListingFailed, KindCatalogRegistrationFailed:
		return CategoryUpstreamUnavailable
	case KindAlreadyRegistered:
		return CategoryConflict
	default:
		return CategoryInternal
	}
}

// Error is returned for every failed registration.
type Error struct {
	Kind  Kind
	JobID int64
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("register job %d: %s", e.JobID, e.Kind)
	}
	return fmt.Sprintf("register job %d: %s: %v", e.JobID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a registration error, or KindUnknown.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// IsJobNotFound reports whether the job did not exist.
func IsJobNotFound(err error) bool { return KindOf(err) == KindJobNotFound }

// IsSeriesNotFound reports whether the job's series did not exist.
func IsSeriesNotFound(err error) bool { return KindOf(err) == KindSeriesNotFound }

// IsStorageListingFailed reports whether the output listing failed.
func IsStorageListingFailed(err error) bool { return KindOf(err) == KindStorageListingFailed }

// IsCatalogRegistrationFailed reports whether the catalogue rejected or
// could not receive the record.
func IsCatalogRegistrationFailed(err error) bool {
	return KindOf(err) == KindCatalogRegistrationFailed
}

// IsAlreadyRegistered reports whether the job had been registered before.
func IsAlreadyRegistered(err error) bool { return KindOf(err) == KindAlreadyRegistered }
