// Package direnv generates shell integration snippets.
package direnv

// EnvrcSnippet returns the recommended .envrc content for a project
func EnvrcSnippet() string {
	return `eval "$(portman export --auto)"` + "\n"
}

// DirenvrcHelper returns a use_portman helper for ~/.config/direnv/direnvrc
func DirenvrcHelper() string {
	return `# Portman helper function for direnv
# Add to ~/.config/direnv/direnvrc

use_portman() {
    eval "$(portman export --auto)"
}
`
}
