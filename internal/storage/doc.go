package storage

// Package storage provides the persistence layer used across restarts.
//
// It currently persists:
//   - Schedule entries (handler ref + target, so delays can be recomputed)
//   - Game clock checkpoints (so absolute game time resumes where it left off)
