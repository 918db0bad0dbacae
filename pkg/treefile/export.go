package treefile

import (
	"context"
	"time"

	"lexigraph/pkg/store"
)

// VersionSource resolves a concept's current version detail while the
// export walks the graph.
type VersionSource interface {
	LatestVersion(ctx context.Context, conceptID int64) (*store.ConceptVersion, error)
	GetVersion(ctx context.Context, versionID int64) (*store.VersionDetail, error)
}

// Build renders the root concepts into a tree export. Each concept is
// expanded at its latest version; a concept reachable through more than
// one parent is expanded only the first time and appears as a bare
// reference after that, which keeps a cyclic edge set from recursing
// forever.
func Build(ctx context.Context, roots []*store.RootConcept, src VersionSource) (*Export, error) {
	e := &Export{ExportedAt: time.Now().UTC()}
	expanded := map[int64]bool{}

	for _, r := range roots {
		node, err := buildNode(ctx, r.ID, r.Text, nil, src, expanded)
		if err != nil {
			return nil, err
		}
		e.Roots = append(e.Roots, node)
	}
	return e, nil
}

func buildNode(ctx context.Context, conceptID int64, text string, parentID *int64, src VersionSource, expanded map[int64]bool) (*Node, error) {
	node := &Node{
		ID:       conceptID,
		Name:     text,
		Type:     "concept",
		ParentID: parentID,
	}
	if expanded[conceptID] {
		return node, nil
	}
	expanded[conceptID] = true

	latest, err := src.LatestVersion(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	detail, err := src.GetVersion(ctx, latest.ID)
	if err != nil {
		return nil, err
	}

	for _, p := range detail.Phrases {
		node.Phrases = append(node.Phrases, p.Text)
	}
	for _, child := range detail.Children {
		id := conceptID
		childNode, err := buildNode(ctx, child.ID, child.Text, &id, src, expanded)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}
