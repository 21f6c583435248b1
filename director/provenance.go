package director

import (
	"sort"

	"github.com/go-git/go-git/v5"
)

// collectProvenance records the source-control state the run was made
// from: the HEAD commit hash and the paths with uncommitted changes.
// Outside a repository both are empty; a run is still valid without
// provenance.
func collectProvenance(path string) (sha string, edits []string) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", nil
	}
	head, err := repo.Head()
	if err != nil {
		return "", nil
	}
	sha = head.Hash().String()

	wt, err := repo.Worktree()
	if err != nil {
		return sha, nil
	}
	status, err := wt.Status()
	if err != nil {
		return sha, nil
	}
	for file, st := range status {
		if st.Worktree != git.Unmodified || st.Staging != git.Unmodified {
			edits = append(edits, file)
		}
	}
	sort.Strings(edits)
	return sha, edits
}
