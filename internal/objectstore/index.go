package objectstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var indexTracer = otel.Tracer("sandbox-gateway/objectstore")

// UpdateIndex implements an optimistic-concurrency index-update protocol:
// read the object at key (treating ErrNotFound as an empty starting point),
// let patch produce the next version, and Put with If-Match on the etag
// just read. A conflicting writer causes patch to be re-run against the
// freshly read value, up to 3 additional attempts with exponential backoff
// (base 10ms, factor 2).
//
// patch receives the current body (nil if the key didn't exist) and returns
// the new body to write.
func UpdateIndex(ctx context.Context, store Store, key string, patch func(current []byte, exists bool) ([]byte, error)) error {
	ctx, span := indexTracer.Start(ctx, "objectstore.update_index", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall-clock

	attempt := 0
	const maxRetries = 3

	op := func() error {
		obj, err := store.Get(ctx, key)
		var current []byte
		exists := true
		etag := ""
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return backoff.Permanent(err)
			}
			exists = false
		} else {
			current = obj.Body
			etag = obj.ETag
		}

		next, err := patch(current, exists)
		if err != nil {
			return backoff.Permanent(err)
		}

		opts := PutOptions{}
		if exists {
			opts.IfMatchETag = etag
		} else {
			opts.IfNoneMatch = true
		}

		_, err = store.Put(ctx, key, next, opts)
		if err != nil {
			if errors.Is(err, ErrPreconditionFailed) {
				attempt++
				if attempt > maxRetries {
					return backoff.Permanent(err)
				}
				return err // retriable
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
