package engine

import (
	"fmt"
	"html"
	"slices"
	"strconv"
	"strings"
)

const (
	graphWidth  = 1200
	frameHeight = 16
	graphMargin = 10
	titleHeight = 40
)

// flameNode is a frame of the merged call tree.
type flameNode struct {
	name     string
	total    int64
	children []*flameNode
}

func (n *flameNode) child(name string) *flameNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	c := &flameNode{name: name}
	n.children = append(n.children, c)
	return c
}

func (n *flameNode) depth() int {
	d := 0
	for _, c := range n.children {
		d = max(d, c.depth())
	}
	return d + 1
}

// buildFlameTree merges folded stack lines into a tree whose node totals
// include their children. Lines that fail to parse are skipped.
func buildFlameTree(lines []string) *flameNode {
	root := &flameNode{name: "all"}
	for _, line := range lines {
		i := strings.LastIndexByte(line, ' ')
		if i < 0 {
			continue
		}
		n, err := strconv.ParseInt(line[i+1:], 10, 64)
		if err != nil {
			continue
		}
		node := root
		root.total += n
		for _, name := range strings.Split(line[:i], ";") {
			if name == "" {
				continue
			}
			node = node.child(name)
			node.total += n
		}
	}
	var sortTree func(*flameNode)
	sortTree = func(n *flameNode) {
		slices.SortFunc(n.children, func(a, b *flameNode) int { return strings.Compare(a.name, b.name) })
		for _, c := range n.children {
			sortTree(c)
		}
	}
	sortTree(root)
	return root
}

// renderFlamegraph draws folded stacks as an SVG flame graph, root at the
// bottom.
func renderFlamegraph(title string, lines []string) string {
	root := buildFlameTree(lines)
	depth := root.depth()
	height := titleHeight + depth*frameHeight + graphMargin
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" standalone="no"?>`+"\n")
	fmt.Fprintf(&b, `<svg version="1.1" width="%d" height="%d" viewBox="0 0 %d %d" xmlns="http://www.w3.org/2000/svg">`+"\n",
		graphWidth, height, graphWidth, height)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="#f8f8f8"/>`+"\n", graphWidth, height)
	fmt.Fprintf(&b, `<text x="%d" y="24" font-size="17" font-family="Verdana" text-anchor="middle">%s</text>`+"\n",
		graphWidth/2, html.EscapeString(title))
	if root.total > 0 {
		scale := float64(graphWidth-2*graphMargin) / float64(root.total)
		drawFrame(&b, root, graphMargin, height-graphMargin-frameHeight, scale, root.total)
	}
	b.WriteString("</svg>\n")
	return b.String()
}

func drawFrame(b *strings.Builder, n *flameNode, x float64, y int, scale float64, total int64) {
	w := float64(n.total) * scale
	if w < 0.1 || n.name == "spacer" {
		return
	}
	pct := 100 * float64(n.total) / float64(total)
	label := fmt.Sprintf("%s (%d instructions, %.2f%%)", n.name, n.total, pct)
	fmt.Fprintf(b, `<g><title>%s</title><rect x="%.1f" y="%d" width="%.1f" height="%d" fill="%s" rx="2"/>`,
		html.EscapeString(label), x, y, w, frameHeight-1, frameColor(n.name))
	if w > 30 {
		fmt.Fprintf(b, `<text x="%.1f" y="%d" font-size="12" font-family="Verdana">%s</text>`,
			x+3, y+frameHeight-4, html.EscapeString(truncateLabel(n.name, w)))
	}
	b.WriteString("</g>\n")
	for _, c := range n.children {
		drawFrame(b, c, x, y-frameHeight, scale, total)
		x += float64(c.total) * scale
	}
}

// truncateLabel shortens a name to fit a frame of width w.
func truncateLabel(name string, w float64) string {
	fit := int((w - 6) / 7)
	if len(name) <= fit {
		return name
	}
	if fit < 3 {
		return ""
	}
	return name[:fit-2] + ".."
}

// frameColor derives a stable warm color from the frame name.
func frameColor(name string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h = (h ^ uint32(name[i])) * 16777619
	}
	r := 205 + h%50
	g := (h >> 8) % 230
	bl := (h >> 16) % 55
	return fmt.Sprintf("rgb(%d,%d,%d)", r, g, bl)
}
