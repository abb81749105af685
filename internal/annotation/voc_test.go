package annotation

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/fitset/internal/geometry"
)

const sampleVOC = `<?xml version="1.0"?>
<annotation>
	<folder>mydatasets</folder>
	<filename>ab_001.jpg</filename>
	<size>
		<width>640</width>
		<height>480</height>
		<depth>3</depth>
	</size>
	<object>
		<name>normal</name>
		<bndbox>
			<xmin>10</xmin>
			<ymin>20</ymin>
			<xmax>110</xmax>
			<ymax>220</ymax>
		</bndbox>
	</object>
	<object>
		<name>Very low</name>
		<bndbox>
			<xmin>100.7</xmin>
			<ymin> 50.2 </ymin>
			<xmax>200.99</xmax>
			<ymax>150.0</ymax>
		</bndbox>
	</object>
	<object>
		<name>low</name>
		<bndbox>
			<xmin>abc</xmin>
			<ymin>1</ymin>
			<xmax>2</xmax>
			<ymax>3</ymax>
		</bndbox>
	</object>
	<object>
		<name>high</name>
		<bndbox>
			<xmin>1</xmin>
			<ymin>1</ymin>
			<xmax>2</xmax>
		</bndbox>
	</object>
	<object>
		<name>finger</name>
		<bndbox>
			<xmin>5</xmin>
			<ymin>5</ymin>
			<xmax>50</xmax>
			<ymax>50</ymax>
		</bndbox>
	</object>
</annotation>`

func TestParse(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	doc, err := Parse(strings.NewReader(sampleVOC), "ab_001.xml", logger)
	require.NoError(t, err)

	assert.Equal(t, "ab_001.jpg", doc.Filename)
	assert.Equal(t, 640, doc.Width)
	assert.Equal(t, 480, doc.Height)

	// Bad xmin and missing ymax are skipped; the unknown label survives parsing.
	require.Len(t, doc.Objects, 3)
	assert.Equal(t, Object{Name: "normal", Box: geometry.Box{XMin: 10, YMin: 20, XMax: 110, YMax: 220}}, doc.Objects[0])
	assert.Equal(t, Object{Name: "Very low", Box: geometry.Box{XMin: 100, YMin: 50, XMax: 200, YMax: 150}}, doc.Objects[1])
	assert.Equal(t, "finger", doc.Objects[2].Name)

	out := logs.String()
	assert.Contains(t, out, "skipping annotation object")
	assert.Contains(t, out, `abc`)
	assert.Contains(t, out, "missing ymax")
}

func TestParse_NoObjects(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<annotation><filename>x.jpg</filename></annotation>`), "x.xml", nil)
	require.NoError(t, err)
	assert.NotNil(t, doc.Objects)
	assert.Empty(t, doc.Objects)
	assert.Zero(t, doc.Width)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated", `<annotation><object><name>low</name>`},
		{"not xml", `this is not xml`},
		{"empty", ``},
		{"wrong root", `<labels><object/></labels>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body), tt.name, nil)
			assert.ErrorIs(t, err, ErrMalformedSource)
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ab_001.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleVOC), 0o644))

	doc, err := ParseFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Source)
	assert.Len(t, doc.Objects, 3)

	_, err = ParseFile(filepath.Join(dir, "missing.xml"), nil)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestDocument_Annotations(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	doc, err := Parse(strings.NewReader(sampleVOC), "ab_001.xml", nil)
	require.NoError(t, err)

	anns := doc.Annotations(logger)
	require.Len(t, anns, 2)
	assert.Equal(t, Normal, anns[0].Category)
	assert.Equal(t, VeryLow, anns[1].Category)
	assert.Contains(t, logs.String(), "finger")
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"12", 12, false},
		{" 12.9 ", 12, false},
		{"0.5", 0, false},
		{"-3.7", -3, false},
		{"1e2", 100, false},
		{"", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"12px", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCoordinate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
