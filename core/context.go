package core

import "context"

type contextKey string

const trainingKey contextKey = "symflow.training"

// WithTraining marks the context as a training run for the given sample.
// Generators called under a training context record their exchanges as
// predictions tagged with the sample id, so rewards computed afterwards can
// be assigned to exactly the calls that earned them.
func WithTraining(ctx context.Context, sampleID string) context.Context {
	return context.WithValue(ctx, trainingKey, sampleID)
}

// TrainingSample returns the sample id of a training run context.
func TrainingSample(ctx context.Context) (string, bool) {
	sampleID, ok := ctx.Value(trainingKey).(string)
	return sampleID, ok
}

// IsTraining reports whether the context belongs to a training run.
func IsTraining(ctx context.Context) bool {
	_, ok := TrainingSample(ctx)
	return ok
}
