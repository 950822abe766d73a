// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package interner provides a process-scoped string deduplicator for the
// small set of well-known span keys and tags the processor emits outside
// of the per-payload string table (e.g. "http.method", "error.stack",
// "unnamed-app"). It has no back-references and no expiry: its lifetime
// matches the Processor that owns it.
package interner

// Interner deduplicates string content, returning the same backing string
// for repeated calls with equal content. It is not safe for concurrent use
// and doesn't need to be: each Processor owns exactly one for the lifetime
// of its connection (§5 of the design: "the string interner inside the
// Processor is not shared across tasks").
type Interner struct {
	set map[string]string
}

// New returns an Interner seeded with the empty string, mirroring the
// source's interner which always starts from {""}.
func New() *Interner {
	return &Interner{set: map[string]string{"": ""}}
}

// Intern returns the canonical shared copy of s, registering s as that
// copy on first use.
func (in *Interner) Intern(s string) string {
	if v, ok := in.set[s]; ok {
		return v
	}
	in.set[s] = s
	return s
}

// Len reports the number of distinct strings interned so far.
func (in *Interner) Len() int {
	return len(in.set)
}
