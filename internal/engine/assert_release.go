//go:build !simdebug

package engine

const debugAssertions = false
