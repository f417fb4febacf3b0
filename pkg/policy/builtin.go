package policy

// BuiltinPolicies returns the policies every validation run starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		pinnedInputsPolicy(),
		inputNamingPolicy(),
		platformEnumerationPolicy(),
		shellInputsPolicy(),
	}
}

// pinnedInputsPolicy requires every input to carry a revision, follow another
// input, or be pinned by the lockfile. Unpinned inputs break the
// reproducibility contract.
func pinnedInputsPolicy() Policy {
	return Policy{
		Name:        "pinned-inputs",
		Description: "Every input must be pinned to a revision, follow another input, or be locked",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package shellforge.policies.pinning

import rego.v1

deny contains violation if {
	some name, decl in input.descriptor.inputs
	not decl.rev
	not decl.follows
	not input.locked[name]
	violation := {
		"message": sprintf("input %s is neither pinned nor locked", [name]),
		"severity": "error",
		"subject": name,
	}
}
`,
	}
}

// inputNamingPolicy enforces lowercase input identifiers.
func inputNamingPolicy() Policy {
	return Policy{
		Name:        "input-naming",
		Description: "Input identifiers must be lowercase alphanumerics, hyphens, or underscores",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package shellforge.policies.naming

import rego.v1

deny contains violation if {
	some name, _ in input.descriptor.inputs
	not regex.match("^[a-z0-9_-]+$", name)
	violation := {
		"message": sprintf("input identifier %s must contain only lowercase letters, digits, hyphens, and underscores", [name]),
		"severity": "error",
		"subject": name,
	}
}
`,
	}
}

// platformEnumerationPolicy requires a non-empty platform enumeration.
func platformEnumerationPolicy() Policy {
	return Policy{
		Name:        "platform-enumeration",
		Description: "The descriptor must enumerate at least one target platform",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package shellforge.policies.platforms

import rego.v1

deny contains violation if {
	count(object.get(input.descriptor, "platforms", [])) == 0
	violation := {
		"message": "descriptor enumerates no target platforms",
		"severity": "error",
	}
}
`,
	}
}

// shellInputsPolicy flags shells that declare no inputs at all.
func shellInputsPolicy() Policy {
	return Policy{
		Name:        "shell-inputs",
		Description: "Every shell must declare at least one buildInput or nativeBuildInput",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package shellforge.policies.shells

import rego.v1

deny contains violation if {
	some name, shell in input.descriptor.shells
	count(object.get(shell, "buildInputs", [])) == 0
	count(object.get(shell, "nativeBuildInputs", [])) == 0
	violation := {
		"message": sprintf("shell %s declares no inputs", [name]),
		"severity": "warning",
		"subject": name,
	}
}
`,
	}
}
