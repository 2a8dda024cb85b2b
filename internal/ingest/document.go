package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tactimerge/internal/extract"
)

// RawDocument is an untagged match report as delivered by a source.
type RawDocument struct {
	SourceID  string         `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	Source    string         `json:"source,omitempty" yaml:"source,omitempty"`
	Title     string         `json:"title,omitempty" yaml:"title,omitempty"`
	Body      string         `json:"body" yaml:"body"`
	BodyFile  string         `json:"body_file,omitempty" yaml:"body_file,omitempty"` // Read into Body when Body is empty
	Format    extract.Format `json:"format,omitempty" yaml:"format,omitempty"`       // text, html, markdown; detected when empty
	FetchedAt time.Time      `json:"fetched_at,omitempty" yaml:"fetched_at,omitempty"`
}

// Tag keys understood by the pipeline.
const (
	TagTeam          = "team"
	TagOpponent      = "opponent"
	TagCompetition   = "competition"
	TagEra           = "era"
	TagDate          = "date"
	TagVenue         = "venue"
	TagFormation     = "formation"
	TagPossession    = "possession"
	TagShots         = "shots"
	TagShotsOnTarget = "shots_on_target"
	TagXG            = "xg"
	TagXGAgainst     = "xg_against"
	TagGoalsFor      = "goals_for"
	TagGoalsAgainst  = "goals_against"
	TagScore         = "score"
)

// Tags are the metadata supplied alongside a document.
type Tags map[string]string

// UnmarshalJSON accepts numbers as well as strings, so stats can be written naturally.
func (t *Tags) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out := make(Tags, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			out[strings.ToLower(k)] = v
		case json.Number, bool:
			out[strings.ToLower(k)] = fmt.Sprint(v)
		default:
			return fmt.Errorf("tag %q: expected a scalar", k)
		}
	}
	*t = out
	return nil
}

// Get returns the trimmed value of key.
func (t Tags) Get(key string) string {
	return strings.TrimSpace(t[key])
}

// Document is one entry of a batch file.
type Document struct {
	Document RawDocument `json:"document" yaml:"document"`
	Tags     Tags        `json:"tags" yaml:"tags"`
	Origin   string      `json:"-" yaml:"-"` // File the entry was loaded from
}

// LoadDocuments reads batch documents from files and directories. Directories
// are walked for *.json, *.yaml and *.yml files in lexical order; each file
// holds one document or a list.
func LoadDocuments(paths ...string) ([]Document, error) {
	var docs []Document
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		files := []string{p}
		if info.IsDir() {
			if files, err = documentFiles(p); err != nil {
				return nil, err
			}
		}
		for _, f := range files {
			loaded, err := loadFile(f)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
		}
	}
	return docs, nil
}

func documentFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isDocumentFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func isDocumentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func loadFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var docs []Document
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		docs, err = decodeJSON(data)
	} else {
		docs, err = decodeYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for i := range docs {
		docs[i].Origin = path
		if docs[i].Document.Body == "" && docs[i].Document.BodyFile != "" {
			bodyPath := docs[i].Document.BodyFile
			if !filepath.IsAbs(bodyPath) {
				bodyPath = filepath.Join(filepath.Dir(path), bodyPath)
			}
			body, err := os.ReadFile(bodyPath)
			if err != nil {
				return nil, fmt.Errorf("read body of %s: %w", path, err)
			}
			docs[i].Document.Body = string(body)
			if docs[i].Document.Format == "" && strings.HasSuffix(strings.ToLower(bodyPath), ".html") {
				docs[i].Document.Format = extract.FormatHTML
			}
		}
	}
	return docs, nil
}

func decodeJSON(data []byte) ([]Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var docs []Document
		err := json.Unmarshal(trimmed, &docs)
		return docs, err
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return []Document{doc}, nil
}

func decodeYAML(data []byte) ([]Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var docs []Document
		err := node.Decode(&docs)
		return docs, err
	}
	var doc Document
	if err := node.Decode(&doc); err != nil {
		return nil, err
	}
	return []Document{doc}, nil
}
