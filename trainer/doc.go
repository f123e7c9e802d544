// Package trainer orchestrates the training, validation and testing of the
// Structure2vec networks. A Model owns one runtime session at a time and
// closes it on every exit path.
package trainer
