package toc

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tocPage   = "Contents\nIntroduction....1\nMethods....5\nResults....12\nConclusion....42"
	bareTOC   = "Introduction....1\nMethods....5\nConclusion....42"
	prosePage = "The committee met on 12 March to discuss the budget. Members raised concerns\n" +
		"about spending in 2023 and asked for a revised plan.\n" +
		"The plan was approved after a short debate."
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     float64
		keyword  bool
		numbered int
	}{
		{"toc with heading", tocPage, 3.0 + 0.8*5.0 + 1.0 + 1.0, true, 4},
		{"toc without heading", bareTOC, 5.0 + 1.0 + 1.0, false, 3},
		{"prose", prosePage, -1.5, false, 0},
		{"heading only", "Contents", 3.0 - 1.5, true, 0},
		{"folio only", "Page 7 of 30", -1.5, false, 1},
		{"devanagari heading", "विषय सूची\nIntro....1\nBody....4\nEnd....9", 3.0 + 5.0 + 1.0 + 1.0, true, 3},
		{"out of order pages", "A....9\nB....3\nC....7\nD....1", 5.0 + 1.0 + 1.0/3.0, false, 4},
		{"empty", "", -1.5, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, sig := Score(tt.text)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, tt.keyword, sig.Keyword)
			assert.Equal(t, tt.numbered, sig.NumberedLines)
		})
	}
}

func TestScore_PenalizesLongPages(t *testing.T) {
	var short, long strings.Builder
	for i := 1; i <= 100; i++ {
		line := fmt.Sprintf("Item %d\t%d\n", i, i)
		long.WriteString(line)
		if i <= 50 {
			short.WriteString(line)
		}
	}
	shortScore, _ := Score(short.String())
	longScore, sig := Score(long.String())
	assert.Equal(t, 100, sig.Lines)
	assert.InDelta(t, 3.0, shortScore-longScore, 1e-9)
}

func TestHasKeyword(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"CONTENTS", true},
		{"Table of Contents", true},
		{"  Contents:  ", true},
		{"Index", true},
		{"Inhaltsverzeichnis", true},
		{"Table des matières", true},
		{"अनुक्रमणिका", true},
		{"Contents ........ v", true},
		{"Discontents", false},
		{"The contents of this report are confidential and may not be shared.", false},
		{"Chapter One", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, hasKeyword(tt.text))
		})
	}
}

func TestLocate_BestFirst(t *testing.T) {
	pages := []PageText{
		{Index: 0, Text: "Annual Report"},
		{Index: 1, Text: bareTOC},
		{Index: 2, Text: tocPage},
		{Index: 3, Text: prosePage},
	}
	cands := Locate(pages)
	require.Len(t, cands, 2)
	assert.Equal(t, 2, cands[0].Page)
	assert.Equal(t, 1, cands[1].Page)
	assert.Greater(t, cands[0].Score, cands[1].Score)
}

func TestLocate_TieBreakPrefersEarlierPage(t *testing.T) {
	pages := []PageText{
		{Index: 7, Text: bareTOC},
		{Index: 4, Text: prosePage},
		{Index: 2, Text: bareTOC},
	}
	cands := Locate(pages)
	require.Len(t, cands, 2)
	assert.Equal(t, cands[0].Score, cands[1].Score)
	assert.Equal(t, 2, cands[0].Page)
	assert.Equal(t, 7, cands[1].Page)
}

func TestLocate_NoCandidates(t *testing.T) {
	cands := Locate([]PageText{
		{Index: 0, Text: prosePage},
		{Index: 1, Text: ""},
		{Index: 2, Text: "Contents"},
	})
	assert.Empty(t, cands)
}

func TestLocator_CustomThreshold(t *testing.T) {
	pages := []PageText{{Index: 0, Text: bareTOC}}
	assert.Empty(t, Locator{MinScore: 7.5}.Locate(pages))
	assert.Len(t, Locator{MinScore: 7.0}.Locate(pages), 1)
}

func TestBest(t *testing.T) {
	tests := []struct {
		name  string
		cands []Candidate
		want  []int
	}{
		{"none", nil, nil},
		{"single", []Candidate{{Page: 4}}, []int{4}},
		{"adjacent run", []Candidate{{Page: 3}, {Page: 9}, {Page: 2}, {Page: 4}}, []int{2, 3, 4}},
		{"gap breaks run", []Candidate{{Page: 3}, {Page: 5}}, []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Best(tt.cands))
		})
	}
}
