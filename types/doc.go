// Package types provides core types used across the chatkernel framework.
// This package has ZERO dependencies on other chatkernel packages to avoid
// circular imports. All other packages should import types from here.
package types
