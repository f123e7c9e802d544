// Package main is the s2v command. It trains a Structure2vec network on
// pre-built batches of function pairs, validates the latest checkpoint, or
// scores test tables with it.
//
//	s2v --config s2v.yaml train [--restore]
//	s2v --config s2v.yaml validate
//	s2v --config s2v.yaml test
package main
