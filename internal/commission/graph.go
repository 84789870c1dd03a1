package commission

import (
	"fmt"
	"sort"

	"syntarex/internal/models"
)

// sponsorGraph is the level 1 referral chain, referee -> sponsor.
type sponsorGraph struct {
	sponsor   map[string]string
	directs   map[string]int
	malformed map[string]error
}

func newSponsorGraph(edges []models.ReferralEdge) *sponsorGraph {
	g := &sponsorGraph{
		sponsor:   make(map[string]string),
		directs:   make(map[string]int),
		malformed: make(map[string]error),
	}
	sorted := make([]models.ReferralEdge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, e := range sorted {
		if e.Level != 1 || !e.IsActive {
			continue
		}
		if existing, ok := g.sponsor[e.RefereeID]; ok && existing != e.SponsorID {
			g.malformed[e.RefereeID] = fmt.Errorf("sponsored by both %s and %s: %w", existing, e.SponsorID, ErrMalformedNode)
			continue
		} else if ok {
			continue
		}
		g.sponsor[e.RefereeID] = e.SponsorID
		g.directs[e.SponsorID]++
	}
	return g
}

// chain returns up to depth sponsors above userID, nearest first. A cycle or
// a malformed link is reported against the user whose edge is broken,
// together with the sponsors found before the break.
func (g *sponsorGraph) chain(userID string, depth int) ([]string, error) {
	visited := map[string]bool{userID: true}
	var out []string
	cur := userID
	for len(out) < depth {
		if err, bad := g.malformed[cur]; bad {
			return out, &ComputationError{UserID: cur, Err: err}
		}
		next, ok := g.sponsor[cur]
		if !ok {
			break
		}
		if visited[next] {
			return out, &ComputationError{UserID: cur, Err: fmt.Errorf("sponsor chain returns to %s: %w", next, ErrCycleDetected)}
		}
		visited[next] = true
		out = append(out, next)
		cur = next
	}
	return out, nil
}

// placementLink is a node's parent in the binary tree and the parent's leg
// the node hangs under.
type placementLink struct {
	parent string
	leg    models.Leg
}

type placementTree struct {
	nodes   map[string]*models.BinaryNode
	parent  map[string]placementLink
	corrupt map[string]error
}

func newPlacementTree(nodes []models.BinaryNode) *placementTree {
	t := &placementTree{
		nodes:   make(map[string]*models.BinaryNode, len(nodes)),
		parent:  make(map[string]placementLink, len(nodes)),
		corrupt: make(map[string]error),
	}
	sorted := make([]models.BinaryNode, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })

	for i := range sorted {
		n := &sorted[i]
		t.nodes[n.UserID] = n
		if n.LeftChildID != nil && n.RightChildID != nil && *n.LeftChildID != "" && *n.LeftChildID == *n.RightChildID {
			t.corrupt[*n.LeftChildID] = fmt.Errorf("placed on both legs of %s: %w", n.UserID, ErrMalformedNode)
			continue
		}
		for _, leg := range []models.Leg{models.LegLeft, models.LegRight} {
			child := n.Child(leg)
			if child == "" {
				continue
			}
			if child == n.UserID {
				t.corrupt[child] = fmt.Errorf("placed under itself: %w", ErrCycleDetected)
				continue
			}
			if existing, ok := t.parent[child]; ok {
				t.corrupt[child] = fmt.Errorf("placed under both %s and %s: %w", existing.parent, n.UserID, ErrMalformedNode)
				continue
			}
			t.parent[child] = placementLink{parent: n.UserID, leg: leg}
		}
	}
	return t
}

// uplines walks from userID to the root, nearest first. On a corrupt node it
// returns the links walked so far with the error.
func (t *placementTree) uplines(userID string) ([]placementLink, error) {
	visited := map[string]bool{userID: true}
	var out []placementLink
	cur := userID
	for {
		if err, bad := t.corrupt[cur]; bad {
			return out, &ComputationError{UserID: cur, Err: err}
		}
		link, ok := t.parent[cur]
		if !ok {
			return out, nil
		}
		if visited[link.parent] {
			return out, &ComputationError{UserID: link.parent, Err: fmt.Errorf("placement tree loops through %s: %w", cur, ErrCycleDetected)}
		}
		visited[link.parent] = true
		out = append(out, link)
		cur = link.parent
	}
}
