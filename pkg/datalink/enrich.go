package datalink

import (
	"context"
	"log/slog"

	"lexigraph/pkg/treefile"
)

// Options control the enrichment pass.
type Options struct {
	// Sample is how many rows to attach per matched node (default: 5).
	Sample int

	// MinTermLen drops search terms shorter than this (default: 3).
	MinTermLen int

	// MaxTerms caps the terms generated per node (default: 8).
	MaxTerms int

	// Logger, when set, reports per-node progress.
	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Sample <= 0 {
		o.Sample = 5
	}
	if o.MinTermLen <= 0 {
		o.MinTermLen = 3
	}
	if o.MaxTerms <= 0 {
		o.MaxTerms = 8
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// NodeLink is the dataset linkage for one tree node.
type NodeLink struct {
	NodeID     int64                    `json:"nodeId"`
	Name       string                   `json:"name"`
	Terms      []string                 `json:"terms"`
	Where      string                   `json:"where"`
	MatchCount int                      `json:"matchCount"`
	SampleRows []map[string]interface{} `json:"sampleRows,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// Result is the full enrichment output: the untouched tree plus a sidecar
// link per node and run-level provenance.
type Result struct {
	Tree    *treefile.Export `json:"tree"`
	Links   []NodeLink       `json:"links"`
	Linkage Linkage          `json:"linkage"`
}

// Linkage is provenance about the run.
type Linkage struct {
	DatasetID      string   `json:"datasetId"`
	Endpoint       string   `json:"endpoint"`
	FieldsSearched []string `json:"fieldsSearched"`
	NodesTotal     int      `json:"nodesTotal"`
	NodesLinked    int      `json:"nodesLinked"`
}

// Enrich looks up every named tree node in the contracts dataset. A node
// named exactly "city of chicago" links to the whole dataset; a query
// failure is recorded on the node's link and the pass keeps going.
func Enrich(ctx context.Context, client *Client, export *treefile.Export, opts Options) (*Result, error) {
	opts.applyDefaults()

	result := &Result{
		Tree: export,
		Linkage: Linkage{
			DatasetID:      DatasetID,
			Endpoint:       client.Endpoint(),
			FieldsSearched: searchFields,
		},
	}

	export.Walk(func(n, parent *treefile.Node, path []string) {
		if n.Name == "" {
			return
		}
		result.Linkage.NodesTotal++

		link := NodeLink{NodeID: n.ID, Name: n.Name}
		if NormalizeText(n.Name) == "city of chicago" {
			link.Where = "1=1"
			link.Terms = []string{"<ALL_ROWS>"}
		} else {
			link.Terms = ExpandTerms(n.Name, opts.MinTermLen, opts.MaxTerms)
			link.Where = BuildWhereClause(link.Terms)
		}

		count, err := client.MatchCount(ctx, link.Where)
		if err != nil {
			link.Error = err.Error()
			result.Links = append(result.Links, link)
			opts.Logger.Warn("node lookup failed", "node", n.Name, "error", err)
			return
		}
		link.MatchCount = count

		if count > 0 {
			rows, err := client.SampleRows(ctx, link.Where, opts.Sample)
			if err != nil {
				link.Error = err.Error()
				result.Links = append(result.Links, link)
				opts.Logger.Warn("node sample failed", "node", n.Name, "error", err)
				return
			}
			link.SampleRows = rows
		}

		result.Links = append(result.Links, link)
		result.Linkage.NodesLinked++
		opts.Logger.Info("node linked", "node", n.Name, "matches", count)
	})

	return result, nil
}
