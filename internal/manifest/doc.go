// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package manifest loads the HCL manifests that declare what each native
// module exports, and checks them against the registry at startup.
//
// A manifest looks like:
//
//	module "calc" {
//	  description = "Arithmetic helpers."
//
//	  function "add" {
//	    arg "a" { type = number }
//	    arg "b" { type = number }
//	  }
//
//	  function "slow_add" {
//	    async = true
//	    arg "a" { type = number }
//	    arg "b" { type = optional(number) }
//	  }
//	}
//
// Why keep manifests next to the Go code?
//
// The Go registration is the source of truth for what can be called, but it
// is invisible to anyone writing scripts against the bridge. The manifest is
// the public contract: it documents every function, its kind and its argument
// types in a format that can be read without a Go toolchain. Validate makes
// the two agree, so a signature change in Go that is not reflected in the
// manifest stops the process at startup instead of surfacing as a type
// mismatch in some script later.
package manifest
