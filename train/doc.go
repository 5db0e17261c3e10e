// Package train provides the built-in rewards, metrics, optimizers and
// callbacks used with Program.Compile and Program.Fit.
//
// Rewards score a predicted document against the expected one, usually in
// [0, 1]. Metrics accumulate observation-only statistics and never influence
// training. Optimizers mutate trainable variables between batches, and
// callbacks hook into the epoch loop for checkpointing and logging.
package train
