package datalink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"lexigraph/pkg/treefile"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Solar   Panels ", "solar panels"},
		{"City OF Chicago", "city of chicago"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The City of Chicago's solar-panel program")
	want := []string{"chicago", "s", "solar", "panel", "program"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestExpandTerms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "special case solar panels",
			in:   "Solar Panels",
			want: []string{"solar", "photovoltaic", "pv", "panel"},
		},
		{
			name: "special case city of chicago",
			in:   "City of Chicago",
			want: []string{"city of chicago"},
		},
		{
			name: "synonym expansion",
			in:   "Microgrid",
			want: []string{"microgrid", "micro grid", "distributed energy", "distributed generation"},
		},
		{
			name: "stopwords dropped and phrase kept",
			in:   "Battery Storage",
			want: []string{"battery", "storage", "battery storage"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandTerms(tt.in, 3, 8)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandTerms(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpandTermsCapsAndMinLen(t *testing.T) {
	got := ExpandTerms("Microgrid Battery Storage Substation Islanding", 3, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 terms, got %d: %v", len(got), got)
	}

	got = ExpandTerms("AC DC grid", 3, 8)
	for _, term := range got {
		if len(term) < 3 {
			t.Errorf("term %q shorter than minimum length", term)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"50%_off", `50\%\_off`},
		{"o'brien", "o''brien"},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := EscapeLike(tt.in); got != tt.want {
			t.Errorf("EscapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildWhereClause(t *testing.T) {
	if got := BuildWhereClause(nil); got != "1=0" {
		t.Errorf("empty terms: got %q, want 1=0", got)
	}

	clause := BuildWhereClause([]string{"solar"})
	for _, field := range searchFields {
		want := fmt.Sprintf(`lower(%s) like '%%solar%%' escape '\\'`, field)
		if !strings.Contains(clause, want) {
			t.Errorf("clause missing %q:\n%s", want, clause)
		}
	}

	clause = BuildWhereClause([]string{"solar", "pv"})
	if strings.Count(clause, " OR ") != 2*len(searchFields)-1 {
		t.Errorf("unexpected OR count in clause: %s", clause)
	}
}

// fakeSocrata serves count and sample queries the way the Socrata API
// shapes them.
func fakeSocrata(t *testing.T, counts map[string]int, rows []map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/"+DatasetID+".json") {
			http.NotFound(w, r)
			return
		}
		where := r.URL.Query().Get("$where")
		sel := r.URL.Query().Get("$select")
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(sel, "count(*)") {
			count := 0
			for needle, n := range counts {
				if strings.Contains(where, needle) {
					count = n
					break
				}
			}
			fmt.Fprintf(w, `[{"c":"%d"}]`, count)
			return
		}
		json.NewEncoder(w).Encode(rows)
	}))
}

func TestClientMatchCount(t *testing.T) {
	srv := fakeSocrata(t, map[string]int{"solar": 12}, nil)
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))

	count, err := client.MatchCount(context.Background(), BuildWhereClause([]string{"solar"}))
	if err != nil {
		t.Fatalf("MatchCount failed: %v", err)
	}
	if count != 12 {
		t.Errorf("expected 12 matches, got %d", count)
	}

	count, err = client.MatchCount(context.Background(), "1=0")
	if err != nil {
		t.Fatalf("MatchCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 matches, got %d", count)
	}
}

func TestClientSampleRows(t *testing.T) {
	rows := []map[string]interface{}{
		{"vendor_name": "ACME SOLAR LLC", "department": "FLEET"},
		{"vendor_name": "SUNRISE ENERGY", "department": "ASSETS"},
	}
	srv := fakeSocrata(t, nil, rows)
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))

	got, err := client.SampleRows(context.Background(), "1=1", 5)
	if err != nil {
		t.Fatalf("SampleRows failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0]["vendor_name"] != "ACME SOLAR LLC" {
		t.Errorf("unexpected first row: %v", got[0])
	}
}

func TestClientAppToken(t *testing.T) {
	var seenToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenToken = r.Header.Get("X-App-Token")
		fmt.Fprint(w, `[{"c":"0"}]`)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithAppToken("secret-token"))
	if _, err := client.MatchCount(context.Background(), "1=0"); err != nil {
		t.Fatalf("MatchCount failed: %v", err)
	}
	if seenToken != "secret-token" {
		t.Errorf("expected app token header, got %q", seenToken)
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid SoQL"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.MatchCount(context.Background(), "garbage(((")
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func enrichFixture() *treefile.Export {
	root := &treefile.Node{
		ID:   1,
		Name: "city of chicago",
		Type: "concept",
		Children: []*treefile.Node{
			{ID: 2, Name: "solar panels", Type: "concept", ParentID: ptr(1)},
			{ID: 3, Name: "substation", Type: "concept", ParentID: ptr(1)},
		},
	}
	return &treefile.Export{Roots: []*treefile.Node{root}}
}

func ptr(v int64) *int64 { return &v }

func TestEnrich(t *testing.T) {
	rows := []map[string]interface{}{
		{"vendor_name": "ACME SOLAR LLC"},
	}
	srv := fakeSocrata(t, map[string]int{"1=1": 100, "solar": 7}, rows)
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	result, err := Enrich(context.Background(), client, enrichFixture(), Options{Sample: 3})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if result.Linkage.NodesTotal != 3 {
		t.Errorf("expected 3 nodes total, got %d", result.Linkage.NodesTotal)
	}
	if result.Linkage.NodesLinked != 3 {
		t.Errorf("expected 3 nodes linked, got %d", result.Linkage.NodesLinked)
	}
	if result.Linkage.DatasetID != DatasetID {
		t.Errorf("linkage dataset = %q", result.Linkage.DatasetID)
	}
	if len(result.Links) != 3 {
		t.Fatalf("expected 3 links, got %d", len(result.Links))
	}

	byName := map[string]NodeLink{}
	for _, l := range result.Links {
		byName[l.Name] = l
	}

	city := byName["city of chicago"]
	if city.Where != "1=1" {
		t.Errorf("city node where = %q, want 1=1", city.Where)
	}
	if !reflect.DeepEqual(city.Terms, []string{"<ALL_ROWS>"}) {
		t.Errorf("city node terms = %v", city.Terms)
	}
	if city.MatchCount != 100 {
		t.Errorf("city node count = %d, want 100", city.MatchCount)
	}

	solar := byName["solar panels"]
	if solar.MatchCount != 7 {
		t.Errorf("solar node count = %d, want 7", solar.MatchCount)
	}
	if len(solar.SampleRows) != 1 {
		t.Errorf("expected sample rows for matched node, got %d", len(solar.SampleRows))
	}

	sub := byName["substation"]
	if sub.MatchCount != 0 {
		t.Errorf("substation count = %d, want 0", sub.MatchCount)
	}
	if len(sub.SampleRows) != 0 {
		t.Errorf("unmatched node should have no sample rows")
	}
}

func TestEnrichNodeErrorDoesNotAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("$where"), "solar") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"c":"0"}]`)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	result, err := Enrich(context.Background(), client, enrichFixture(), Options{})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if len(result.Links) != 3 {
		t.Fatalf("expected links for every node, got %d", len(result.Links))
	}

	var failed, linked int
	for _, l := range result.Links {
		if l.Error != "" {
			failed++
		} else {
			linked++
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 failed node, got %d", failed)
	}
	if result.Linkage.NodesLinked != linked {
		t.Errorf("nodes linked = %d, want %d", result.Linkage.NodesLinked, linked)
	}
}
