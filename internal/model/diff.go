package model

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NodeChange is a node present in both snapshots whose mutable fields
// differ.
type NodeChange struct {
	Index   int                  `yaml:"index"   json:"index"`
	Label   string               `yaml:"label"   json:"label"`
	Changes map[string][2]string `yaml:"changes" json:"changes"`
}

// NodeDiff is the result of comparing two snapshots by node identity.
// Indices are 1-based positions in the snapshot the node was taken from.
type NodeDiff struct {
	Added          []IndexedNode `yaml:"added,omitempty"   json:"added,omitempty"`
	Removed        []IndexedNode `yaml:"removed,omitempty" json:"removed,omitempty"`
	Changed        []NodeChange  `yaml:"changed,omitempty" json:"changed,omitempty"`
	UnchangedCount int           `yaml:"unchanged_count"   json:"unchanged_count"`
}

// Empty reports whether the snapshots matched completely.
func (d NodeDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Summary renders the counts, e.g. "+2 -1 ~3".
func (d NodeDiff) Summary() string {
	return fmt.Sprintf("+%d -%d ~%d", len(d.Added), len(d.Removed), len(d.Changed))
}

// NodeHash computes an identity hash from the fields that survive a
// re-render: class, package, resource id and content description. Text
// joins the identity only for nodes with neither id nor description, so
// an edited field is reported as changed rather than replaced.
func NodeHash(n NodeSnapshot) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", n.ClassName, n.Package, n.ResourceID, n.ContentDesc)
	if n.ResourceID == "" && n.ContentDesc == "" {
		fmt.Fprintf(h, "|%s", n.Text)
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// nodeKeys numbers repeated hashes in snapshot order so list rows sharing
// an id still pair up one to one.
func nodeKeys(nodes []NodeSnapshot) []string {
	seen := make(map[string]int, len(nodes))
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		h := NodeHash(n)
		keys[i] = fmt.Sprintf("%s#%d", h, seen[h])
		seen[h]++
	}
	return keys
}

// DiffNodes compares two snapshots. Nodes are matched by NodeHash, so
// index shifts caused by nodes appearing or disappearing are not changes.
func DiffNodes(prev, curr []NodeSnapshot) NodeDiff {
	prevKeys := nodeKeys(prev)
	prevByKey := make(map[string]int, len(prev))
	for i, k := range prevKeys {
		prevByKey[k] = i
	}
	currKeys := nodeKeys(curr)
	currByKey := make(map[string]bool, len(curr))
	for _, k := range currKeys {
		currByKey[k] = true
	}

	var diff NodeDiff
	for i, n := range curr {
		j, existed := prevByKey[currKeys[i]]
		if !existed {
			diff.Added = append(diff.Added, IndexedNode{Index: i + 1, NodeSnapshot: n})
			continue
		}
		if changes := diffNodeProperties(prev[j], n); changes != nil {
			diff.Changed = append(diff.Changed, NodeChange{Index: i + 1, Label: n.Label(), Changes: changes})
		} else {
			diff.UnchangedCount++
		}
	}
	for i, n := range prev {
		if !currByKey[prevKeys[i]] {
			diff.Removed = append(diff.Removed, IndexedNode{Index: i + 1, NodeSnapshot: n})
		}
	}
	return diff
}

// diffNodeProperties compares the fields NodeHash leaves out.
func diffNodeProperties(prev, curr NodeSnapshot) map[string][2]string {
	diffs := make(map[string][2]string)
	if prev.Text != curr.Text {
		diffs["text"] = [2]string{prev.Text, curr.Text}
	}
	if prev.Bounds != curr.Bounds {
		diffs["bounds"] = [2]string{prev.Bounds.String(), curr.Bounds.String()}
	}
	if len(diffs) == 0 {
		return nil
	}
	return diffs
}

// snapshotPrefix is the filename prefix for saved snapshots.
const snapshotPrefix = "appium-bridge-snapshot-"

// SnapshotPath is where the last snapshot of a device is kept.
func SnapshotPath(device string) string {
	if device == "" {
		device = "default"
	}
	safe := strings.NewReplacer("/", "_", " ", "_", ":", "_").Replace(device)
	return filepath.Join(os.TempDir(), snapshotPrefix+safe+".json")
}

// SaveSnapshot writes the nodes of a device for later diffing.
func SaveSnapshot(device string, nodes []NodeSnapshot) error {
	data, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return os.WriteFile(SnapshotPath(device), data, 0644)
}

// LoadSnapshot reads the last saved snapshot of a device.
func LoadSnapshot(device string) ([]NodeSnapshot, error) {
	data, err := os.ReadFile(SnapshotPath(device))
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var nodes []NodeSnapshot
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return nodes, nil
}
