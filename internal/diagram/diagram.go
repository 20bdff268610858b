// Package diagram renders analysis steps as the node/link payload the
// frontend's flow widget consumes.
package diagram

import "regexp"

// Node is one diagram vertex. Category selects the widget's shape.
type Node struct {
	Key      int    `json:"key"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

// Link is one directed edge between node keys.
type Link struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Diagram is the full payload: nodes plus the edges connecting them.
type Diagram struct {
	NodeDataArray []Node `json:"nodeDataArray"`
	LinkDataArray []Link `json:"linkDataArray"`
}

// Linear chains steps between a Start and an End node, one edge per
// hop.
func Linear(steps []string) Diagram {
	nodes := make([]Node, 0, len(steps)+2)
	nodes = append(nodes, Node{Key: 0, Text: "Start", Category: "Start"})
	for i, step := range steps {
		nodes = append(nodes, Node{Key: i + 1, Text: step, Category: "Question"})
	}
	nodes = append(nodes, Node{Key: len(steps) + 1, Text: "End", Category: "End"})

	links := make([]Link, 0, len(steps)+1)
	for i := 0; i <= len(steps); i++ {
		links = append(links, Link{From: i, To: i + 1})
	}
	return Diagram{NodeDataArray: nodes, LinkDataArray: links}
}

var stepRe = regexp.MustCompile(`[sS]tep\s*\d+:\s*(.*)`)

// ParseSteps pulls the "step N:" lines out of an analysis answer.
func ParseSteps(analysis string) []string {
	var steps []string
	for _, m := range stepRe.FindAllStringSubmatch(analysis, -1) {
		steps = append(steps, m[1])
	}
	return steps
}
