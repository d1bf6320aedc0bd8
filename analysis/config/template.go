// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

// Template is the commented configuration "deadwood init" writes.
// Every uncommented value is the default; the strict loader decodes
// this text to exactly Default().
const Template = `# deadwood configuration.
#
# Uncommented values are the defaults. Commented entries are examples
# for settings that default to empty.

paths:
  # Restrict the scan to matching globs. Empty scans the whole tree.
  # include:
  #   - "src/"
  # Skip matching paths, gitignore syntax.
  exclude:
    - ".git/"
    - ".venv/"
    - "venv/"
    - "__pycache__/"
    - ".mypy_cache/"
    - ".pytest_cache/"
    - ".tox/"
    - "build/"
    - "dist/"

analysis:
  # Extra roots beyond declared exports: exact FQNs or dot-boundary
  # suffixes ("tasks.cleanup" matches "app.tasks.cleanup").
  # whitelist:
  #   - "myapp.cli.main"
  # Path pattern over edge kinds: concatenation, alternation (|),
  # grouping, * and +.
  pattern: "alias* (call|value-flow|decorator|exception|isinstance|property|return-escape)+"
  # Dynamic-usage extractors, off unless listed: "registry", "dispatch".
  # plugins:
  #   - "dispatch"
  # Call names the registry plugin treats as registration points.
  # registry_constructors:
  #   - "app.register"
  # Expand an export naming a submodule into that submodule's exports.
  module_export_closure: false
  # Mark protocol method implementations used when the protocol is.
  protocol_nominal: true
  # Require matching arity for protocol implementations.
  protocol_strict_signature: true
  # Let policy-structural edges match anywhere in a path, not only as
  # the first hop out of a root.
  policy_anywhere: false

scan:
  # Parallel parse workers. 0 uses every available CPU.
  workers: 0

cache:
  # Content-addressed parse cache. Results are identical on or off.
  enabled: true
  # Cache location. Empty uses ~/.deadwood/cache.
  # dir: "/tmp/deadwood-cache"

output:
  # Report directory for dead_code.json and graph exports.
  dir: "."
  # Fail the run (exit 1) when more than this many dead symbols are
  # found. -1 disables the gate.
  max_dead: -1
`
