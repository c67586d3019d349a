// Package naming implements the BIDS-like dataset naming convention: subject
// and session labels, per-subject directory and file-prefix construction,
// and placeholder expansion of step path templates.
//
// Layout:
//
//	<base>/<sub>/<ses>/<modality>/<sub>_<ses>_<entities>_<suffix>.<ext>
//
// Datasets without a session level drop <ses> from both the directory and
// the prefix. Templates reference the layout through placeholders such as
// {subdir} and {prefix}; see [Vars].
package naming
