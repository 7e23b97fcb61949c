/*
Copyright (C) 2023-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package logfmt

import (
	"fmt"
	"strings"

	packrat "github.com/launix-de/go-packrat/v2"
)

// The §6.2 grammar, in the same combinator style scm/packrat.go builds its
// own grammars with: a record is a token, optionally followed by any
// number of ";arg" groups; a stream is "|"-separated records bookended by
// the literal tokens START and STOP.
var (
	tokenParser = packrat.NewRegexParser(`[^|;]+`, false, false)
	semiParser  = packrat.NewAtomParser(";", false, false)
	pipeParser  = packrat.NewAtomParser("|", false, false)

	argGroupParser = packrat.NewAndParser(semiParser, tokenParser)
	recordParser   = packrat.NewAndParser(tokenParser, packrat.NewKleeneParser(argGroupParser, packrat.NewEmptyParser()))
	streamParser   = packrat.NewKleeneParser(recordParser, pipeParser)
)

func parseStream(stream string) ([]Record, error) {
	scanner := packrat.NewScanner(strings.TrimRight(stream, "\n"), nil)
	node, err := packrat.Parse(streamParser, scanner)
	if err != nil {
		return nil, err
	}

	// streamParser is a KleeneParser over recordParser: children alternate
	// record, separator, record, separator, ... (the same layout
	// scm/packrat.go's ExtractScmer walks for its own KleeneParser case).
	var raw []*packrat.Node
	for i := 0; i < len(node.Children); i += 2 {
		raw = append(raw, node.Children[i])
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("logfmt: stream too short to hold START/STOP")
	}

	records := make([]Record, 0, len(raw))
	for _, rn := range raw {
		records = append(records, extractRecord(rn))
	}

	if records[0].Tag != "START" {
		return nil, fmt.Errorf("logfmt: stream does not begin with START")
	}
	if records[len(records)-1].Tag != "STOP" {
		return nil, fmt.Errorf("logfmt: stream does not end with STOP")
	}
	return records[1 : len(records)-1], nil
}

// extractRecord walks one recordParser match: Children[0] is the tag
// token, Children[1] is the Kleene node of ";arg" groups.
func extractRecord(n *packrat.Node) Record {
	rec := Record{Tag: n.Children[0].Matched}
	argsNode := n.Children[1]
	for i := 0; i < len(argsNode.Children); i += 2 {
		group := argsNode.Children[i] // AndParser(semi, token)
		rec.Args = append(rec.Args, group.Children[1].Matched)
	}
	return rec
}
