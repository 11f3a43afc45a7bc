// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package funcbundle

import (
	"context"
)

// BuildTracer contains a set of callbacks that a caller can optionally provide
// to [Assembler] and [Bundle] methods via their [context.Context] arguments
// to be notified as assembly makes progress, to allow both for debugging and
// for UI feedback.
//
// Any or all of the callbacks may be left as nil, in which case no event
// will be delivered for the corresponding event.
//
// The [context.Context] passed to each trace function is guaranteed to be a
// child of the one passed to whatever method caused the event to occur, and
// so it can carry cross-cutting information such as distributed tracing
// clients.
//
// The "Start"-suffixed methods all allow returning a new context which will
// then be passed to the corresponding "Success"-suffixed or "Failure"-suffixed
// function, and also used within the scope of that operation. This allows
// carrying values such as tracing spans between the start and end, so they
// can properly bracket the operation in question. If your tracer doesn't
// need this then just return the given context.
type BuildTracer struct {
	// The Unit... callbacks frame the assembly of one deployable unit, from
	// declaration to its staged and checksummed directory.
	UnitStart   func(ctx context.Context, name string) context.Context
	UnitSuccess func(ctx context.Context, name string, sourceHash string)
	UnitFailure func(ctx context.Context, name string, err error)

	// SourceStaged is called once for each resolved file placed into a
	// unit's staging directory, including files contributed by a merged
	// directory source.
	SourceStaged func(ctx context.Context, name string, target string, size int64)

	// RequirementsResolved is called after a unit's requirement list has
	// been normalized and checked for conflicts, with the canonical
	// requirement strings that will be recorded in the manifest.
	RequirementsResolved func(ctx context.Context, name string, requirements []string)

	// The Archive... callbacks frame writing a unit's archive via
	// [Bundle.WriteUnitArchive].
	ArchiveStart   func(ctx context.Context, name string) context.Context
	ArchiveSuccess func(ctx context.Context, name string)
	ArchiveFailure func(ctx context.Context, name string, err error)
}

// OnContext takes a context and returns a derived context which has everything
// the given context already had plus also the receiving BuildTracer object,
// so that passing the resulting context to methods of [Assembler] will cause
// the trace object's callbacks to be called.
//
// Each context can have only one tracer, so if the given context already has
// a tracer then it will be overridden by the new one.
func (bt *BuildTracer) OnContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, buildTraceKey, bt)
}

func buildTraceFromContext(ctx context.Context) *BuildTracer {
	ret, ok := ctx.Value(buildTraceKey).(*BuildTracer)
	if !ok {
		// We'll always return a non-nil pointer just because that reduces
		// the amount of boilerplate required in the caller when announcing
		// events.
		ret = &noopBuildTrace
	}
	return ret
}

type buildTraceKeyType int

const buildTraceKey buildTraceKeyType = 0

// noopBuildTrace is an all-nil [BuildTracer] we return a pointer to if we're
// asked for a BuildTrace from a context that doesn't have one.
var noopBuildTrace BuildTracer
