// Package ir provides the canonical data types shared by every asof package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal, so it stays the foundational layer.
//
// Key design constraints:
//   - NO float types in attributes - money and quantities are int64
//   - Timestamps are int64 (wall-clock micros or logical ticks), Forever is +infinity
//   - Intervals are half-open: [ValidFrom, ValidTo)
//   - All JSON tags use snake_case
//   - Stored records use canonical JSON so identical states hash identically
package ir
