package toc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropHeadings(t *testing.T) {
	in := []Entry{
		{Title: "Table of Contents", Line: 1},
		{Title: "Chapter Page", Line: 2},
		{Title: "Introduction", Page: page(1), Line: 3},
		{Title: "Chapter One", Line: 4},
		{Title: "Contents", Page: page(2), Line: 5},
		{Title: "17", Line: 6},
		{Title: "--", Line: 7},
		{Title: "S.No. Topic Page No.", Line: 8},
		{Title: "Index", Line: 9},
	}

	out := DropHeadings(in)

	var lines []int
	for _, e := range out {
		lines = append(lines, e.Line)
	}
	assert.Equal(t, []int{3, 4, 5}, lines)
	assert.Len(t, in, 9, "input must not be modified")
}

func TestDropHeadings_Empty(t *testing.T) {
	out := DropHeadings(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestDropHeadings_TypicalPage(t *testing.T) {
	raw := "TABLE OF CONTENTS\nChapter          Page\nPreface ........ 1\nChapter One\nThe Beginning .... 3\n\n- 14 -"
	entries := DropHeadings(Parse(Normalize(raw)))

	var titles []string
	for _, e := range entries {
		titles = append(titles, e.Title)
	}
	assert.Equal(t, []string{"Preface", "Chapter One", "The Beginning"}, titles)
	assert.Equal(t, page(1), entries[0].Page)
	assert.Nil(t, entries[1].Page)
	assert.Equal(t, page(3), entries[2].Page)
	assert.Equal(t, 5, entries[2].Line)
}
