package artifact

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
	"github.com/Anubhav12123/AI-Recommender-System/internal/cf"
	"github.com/Anubhav12123/AI-Recommender-System/internal/embedding"
	"github.com/Anubhav12123/AI-Recommender-System/internal/lexical"
	"github.com/Anubhav12123/AI-Recommender-System/internal/vector"
)

// Bundle file layout: a fixed header, named sections back to back, a JSON
// section table, and a fixed footer pointing at the table. Sections carry
// individual CRCs so a truncated or corrupted bundle is detected at open.
const (
	MagicBytes    uint32 = 0x52414958 // "RAIX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
	FooterSize    int    = 24
)

const (
	sectionManifest   = "manifest"
	sectionItems      = "items"
	sectionLexical    = "lexical"
	sectionEmbeddings = "embeddings"
	sectionCF         = "cf"
	// sectionEmbedder is present only for corpus-trained builds; bundles
	// built from a remote provider omit it.
	sectionEmbedder = "tfidf"
)

type sectionEntry struct {
	Name     string `json:"n"`
	Offset   int64  `json:"o"`
	Length   int64  `json:"l"`
	Checksum uint32 `json:"c"`
}

type bundleSection struct {
	name   string
	encode func() ([]byte, error)
}

// lexicalSection is the serialized form of the BM25 index.
type lexicalSection struct {
	Params       lexical.Params     `json:"params"`
	AvgDocLength float64            `json:"avg_doc_length"`
	DocLengths   map[string]int     `json:"doc_lengths"`
	Terms        []lexical.TermEntry `json:"terms"`
}

// WriteBundle serialises a Version into path atomically (tmp file +
// rename). The embedding matrix is stored in a compact binary section; the
// remaining sections are JSON.
func WriteBundle(path string, v *Version) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating bundle file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(time.Now().Unix()))
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("writing bundle header: %w", err)
	}

	sections := []bundleSection{
		{sectionManifest, func() ([]byte, error) { return json.Marshal(v.Manifest) }},
		{sectionItems, func() ([]byte, error) { return json.Marshal(itemList(v.Items)) }},
		{sectionLexical, func() ([]byte, error) {
			return json.Marshal(lexicalSection{
				Params:       v.Lexical.Params(),
				AvgDocLength: v.Lexical.AvgDocLength(),
				DocLengths:   v.Lexical.DocLengths(),
				Terms:        v.Lexical.Snapshot(),
			})
		}},
		{sectionEmbeddings, func() ([]byte, error) { return encodeEmbeddings(v.Embeddings, v.Manifest.Dimensions) }},
		{sectionCF, func() ([]byte, error) { return json.Marshal(v.CF.Data()) }},
	}
	if v.QueryEmbedder != nil {
		sections = append(sections, bundleSection{sectionEmbedder, func() ([]byte, error) {
			return json.Marshal(v.QueryEmbedder.Data())
		}})
	}

	offset := int64(HeaderSize)
	table := make([]sectionEntry, 0, len(sections))
	for _, s := range sections {
		data, err := s.encode()
		if err != nil {
			return fmt.Errorf("encoding %s section: %w", s.name, err)
		}
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("writing %s section: %w", s.name, err)
		}
		table = append(table, sectionEntry{
			Name:     s.name,
			Offset:   offset,
			Length:   int64(len(data)),
			Checksum: crc32.ChecksumIEEE(data),
		})
		offset += int64(len(data))
	}

	tableData, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("marshaling section table: %w", err)
	}
	if _, err := f.Write(tableData); err != nil {
		return fmt.Errorf("writing section table: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(footer[0:8], uint64(offset))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(len(tableData)))
	binary.LittleEndian.PutUint32(footer[16:20], crc32.ChecksumIEEE(tableData))
	binary.LittleEndian.PutUint32(footer[20:24], MagicBytes)
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing bundle footer: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing bundle file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming bundle file: %w", err)
	}
	return nil
}

// LoadOptions selects how the nearest-neighbor index is reconstructed from
// the persisted embedding matrix.
type LoadOptions struct {
	VectorBackend string // "flat" (default) or "hnsw"
	HNSW          vector.HNSWConfig
}

// ReadBundle loads a Version from a bundle file, verifying checksums and
// rebuilding the in-memory indexes.
func ReadBundle(path string, opts LoadOptions) (*Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("bundle %s truncated: %d bytes", path, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != MagicBytes {
		return nil, fmt.Errorf("invalid bundle %s: bad magic bytes %x", path, magic)
	}
	if ver := binary.LittleEndian.Uint32(data[4:8]); ver != FormatVersion {
		return nil, fmt.Errorf("unsupported bundle format version %d in %s", ver, path)
	}

	footer := data[len(data)-FooterSize:]
	tableOffset := int64(binary.LittleEndian.Uint64(footer[0:8]))
	tableSize := int64(binary.LittleEndian.Uint64(footer[8:16]))
	tableCRC := binary.LittleEndian.Uint32(footer[16:20])
	if tableOffset+tableSize > int64(len(data)) {
		return nil, fmt.Errorf("bundle %s: section table out of bounds", path)
	}
	tableData := data[tableOffset : tableOffset+tableSize]
	if crc32.ChecksumIEEE(tableData) != tableCRC {
		return nil, fmt.Errorf("bundle %s: section table checksum mismatch", path)
	}
	var table []sectionEntry
	if err := json.Unmarshal(tableData, &table); err != nil {
		return nil, fmt.Errorf("parsing section table: %w", err)
	}

	section := func(name string) ([]byte, error) {
		for _, e := range table {
			if e.Name != name {
				continue
			}
			if e.Offset+e.Length > int64(len(data)) {
				return nil, fmt.Errorf("bundle %s: section %s out of bounds", path, name)
			}
			raw := data[e.Offset : e.Offset+e.Length]
			if crc32.ChecksumIEEE(raw) != e.Checksum {
				return nil, fmt.Errorf("bundle %s: section %s checksum mismatch", path, name)
			}
			return raw, nil
		}
		return nil, fmt.Errorf("bundle %s: missing section %s", path, name)
	}

	v := &Version{}

	raw, err := section(sectionManifest)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &v.Manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	raw, err = section(sectionItems)
	if err != nil {
		return nil, err
	}
	var items []catalog.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parsing items: %w", err)
	}
	v.Items = make(map[string]catalog.Item, len(items))
	for _, it := range items {
		v.Items[it.ID] = it
	}

	raw, err = section(sectionLexical)
	if err != nil {
		return nil, err
	}
	var lex lexicalSection
	if err := json.Unmarshal(raw, &lex); err != nil {
		return nil, fmt.Errorf("parsing lexical section: %w", err)
	}
	v.Lexical = lexical.Restore(lex.Terms, lex.DocLengths, lex.AvgDocLength, lex.Params)

	raw, err = section(sectionEmbeddings)
	if err != nil {
		return nil, err
	}
	v.Embeddings, err = decodeEmbeddings(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing embeddings section: %w", err)
	}

	raw, err = section(sectionCF)
	if err != nil {
		return nil, err
	}
	var cfData cf.ModelData
	if err := json.Unmarshal(raw, &cfData); err != nil {
		return nil, fmt.Errorf("parsing cf section: %w", err)
	}
	v.CF = cf.Restore(cfData)

	if hasSection(table, sectionEmbedder) {
		raw, err = section(sectionEmbedder)
		if err != nil {
			return nil, err
		}
		var embData embedding.TFIDFData
		if err := json.Unmarshal(raw, &embData); err != nil {
			return nil, fmt.Errorf("parsing embedder section: %w", err)
		}
		if len(embData.Vocabulary) > 0 {
			v.QueryEmbedder = embedding.RestoreTFIDF(embData)
		}
	}

	switch opts.VectorBackend {
	case "hnsw":
		v.VectorIndex = vector.NewHNSW(v.Embeddings, opts.HNSW)
	default:
		v.VectorIndex = vector.NewFlat(v.Embeddings)
	}
	v.IndexEmbeddings()
	return v, nil
}

// ReadManifest extracts only the manifest from a bundle, used for listing
// retained versions without loading full indexes.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("reading bundle file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return m, fmt.Errorf("bundle %s truncated", path)
	}
	footer := data[len(data)-FooterSize:]
	tableOffset := int64(binary.LittleEndian.Uint64(footer[0:8]))
	tableSize := int64(binary.LittleEndian.Uint64(footer[8:16]))
	if tableOffset+tableSize > int64(len(data)) {
		return m, fmt.Errorf("bundle %s: section table out of bounds", path)
	}
	var table []sectionEntry
	if err := json.Unmarshal(data[tableOffset:tableOffset+tableSize], &table); err != nil {
		return m, fmt.Errorf("parsing section table: %w", err)
	}
	for _, e := range table {
		if e.Name == sectionManifest {
			if err := json.Unmarshal(data[e.Offset:e.Offset+e.Length], &m); err != nil {
				return m, fmt.Errorf("parsing manifest: %w", err)
			}
			return m, nil
		}
	}
	return m, fmt.Errorf("bundle %s: missing manifest section", path)
}

// encodeEmbeddings packs the normalized matrix as little-endian binary:
// dims and count, then per entry an id length, the id bytes, and dims
// float32 components.
func encodeEmbeddings(entries []vector.Entry, dims int) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(dims)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(entries))); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if len(e.Vector) != dims {
			return nil, fmt.Errorf("entry %s has %d dimensions, bundle has %d", e.ID, len(e.Vector), dims)
		}
		if len(e.ID) > 0xFFFF {
			return nil, fmt.Errorf("item id too long: %d bytes", len(e.ID))
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint16(len(e.ID))); err != nil {
			return nil, err
		}
		buf.WriteString(e.ID)
		if err := binary.Write(&buf, binary.LittleEndian, e.Vector); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeEmbeddings(data []byte) ([]vector.Entry, error) {
	r := bytes.NewReader(data)
	var dims, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	entries := make([]vector.Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		var idLen uint16
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return nil, err
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return nil, err
		}
		vec := make([]float32, dims)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, err
		}
		entries = append(entries, vector.Entry{ID: string(idBytes), Vector: vec})
	}
	return entries, nil
}

func hasSection(table []sectionEntry, name string) bool {
	for _, e := range table {
		if e.Name == name {
			return true
		}
	}
	return false
}

func itemList(items map[string]catalog.Item) []catalog.Item {
	out := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	// Stable section bytes for identical inputs.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
