//go:build simdebug

package engine

const debugAssertions = true
