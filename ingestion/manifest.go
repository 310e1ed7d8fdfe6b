// Package ingestion loads contract manifests of already extracted documents,
// passages and overrides, and seeds them into the passage store.
package ingestion

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/fabfab/contract-agent/contract"
)

// manifestNamespace derives stable IDs for manifest entries that omit one, so
// that seeding the same manifest twice yields the same rows.
var manifestNamespace = uuid.MustParse("6f1c2b9e-3f0a-4d7e-9a51-2c8e4b7d1a03")

// Manifest is the authoring format: passages are nested under their document.
type Manifest struct {
	ContractID string              `yaml:"contract_id"`
	Documents  []ManifestDocument  `yaml:"documents"`
	Overrides  []contract.Override `yaml:"overrides"`
}

type ManifestDocument struct {
	ID            string            `yaml:"id"`
	Title         string            `yaml:"title"`
	Group         string            `yaml:"group"`
	Sequence      int               `yaml:"sequence"`
	EffectiveDate *time.Time        `yaml:"effective_date"`
	Supersedes    string            `yaml:"supersedes"`
	Passages      []ManifestPassage `yaml:"passages"`
}

type ManifestPassage struct {
	ID     string `yaml:"id"`
	Clause string `yaml:"clause"`
	Title  string `yaml:"title"`
	Text   string `yaml:"text"`
}

// LoadFile reads and converts the manifest at path.
func LoadFile(path string) (contract.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return contract.Snapshot{}, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML manifest and converts it to a validated snapshot.
func Parse(data []byte) (contract.Snapshot, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return contract.Snapshot{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m.Snapshot(time.Now().UTC())
}

// Snapshot validates the manifest and flattens it. createdAt stamps every
// document, offset by its position so that manifest order breaks final ties.
func (m Manifest) Snapshot(createdAt time.Time) (contract.Snapshot, error) {
	contractID := strings.TrimSpace(m.ContractID)
	if contractID == "" {
		return contract.Snapshot{}, fmt.Errorf("manifest contract_id is required: %w", contract.ErrInvalidInput)
	}

	snap := contract.Snapshot{ContractID: contractID}
	ids := make(map[string]struct{}, len(m.Documents))
	for i, d := range m.Documents {
		group, err := contract.ParseGroup(d.Group)
		if err != nil {
			return contract.Snapshot{}, fmt.Errorf("document %d: %w", i, err)
		}
		docID := strings.TrimSpace(d.ID)
		if docID == "" {
			docID = stableID(contractID, "document", d.Title, string(group), fmt.Sprint(d.Sequence))
		}
		if _, dup := ids[docID]; dup {
			return contract.Snapshot{}, fmt.Errorf("duplicate document id %q: %w", docID, contract.ErrInvalidInput)
		}
		ids[docID] = struct{}{}

		snap.Documents = append(snap.Documents, contract.Document{
			ID:            docID,
			Title:         strings.TrimSpace(d.Title),
			Group:         group,
			Sequence:      d.Sequence,
			EffectiveDate: d.EffectiveDate,
			Supersedes:    strings.TrimSpace(d.Supersedes),
			CreatedAt:     createdAt.Add(time.Duration(i) * time.Millisecond),
		})

		for j, p := range d.Passages {
			text := strings.TrimSpace(p.Text)
			if text == "" {
				return contract.Snapshot{}, fmt.Errorf("document %q passage %d: text is required: %w", docID, j, contract.ErrInvalidInput)
			}
			passageID := strings.TrimSpace(p.ID)
			if passageID == "" {
				passageID = stableID(contractID, "passage", docID, fmt.Sprint(j))
			}
			snap.Passages = append(snap.Passages, contract.Passage{
				ID:           passageID,
				DocumentID:   docID,
				Group:        group,
				ClauseNumber: strings.TrimSpace(p.Clause),
				ClauseTitle:  strings.TrimSpace(p.Title),
				Text:         text,
			})
		}
	}

	for _, d := range snap.Documents {
		if d.Supersedes == "" {
			continue
		}
		if _, ok := ids[d.Supersedes]; !ok {
			return contract.Snapshot{}, fmt.Errorf("document %q supersedes unknown document %q: %w", d.ID, d.Supersedes, contract.ErrInvalidInput)
		}
	}

	for i, o := range m.Overrides {
		if _, ok := ids[o.OverridingID]; !ok {
			return contract.Snapshot{}, fmt.Errorf("override %d: unknown overriding document %q: %w", i, o.OverridingID, contract.ErrInvalidInput)
		}
		if _, ok := ids[o.OverriddenID]; !ok {
			return contract.Snapshot{}, fmt.Errorf("override %d: unknown overridden document %q: %w", i, o.OverriddenID, contract.ErrInvalidInput)
		}
		if o.OverridingID == o.OverriddenID {
			return contract.Snapshot{}, fmt.Errorf("override %d: document %q cannot override itself: %w", i, o.OverridingID, contract.ErrInvalidInput)
		}
		if strings.TrimSpace(o.ID) == "" {
			o.ID = stableID(contractID, "override", o.OverridingID, o.OverriddenID, strings.Join(o.Clauses, ","))
		}
		snap.Overrides = append(snap.Overrides, o)
	}

	return snap, nil
}

func stableID(parts ...string) string {
	return uuid.NewSHA1(manifestNamespace, []byte(strings.Join(parts, "\x00"))).String()
}
