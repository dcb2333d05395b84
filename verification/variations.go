package verification

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/provenance/compilation/hashing"
	"github.com/crytic/provenance/compilation/types"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// originalVariation is the key of the variation holding the sources exactly as provided.
const originalVariation = "original"

// contentVariators normalize line endings of a source text.
var contentVariators = []func(string) string{
	func(content string) string {
		return strings.ReplaceAll(strings.ReplaceAll(content, "\r\n", "\n"), "\n", "\r\n")
	},
	func(content string) string {
		return strings.ReplaceAll(content, "\r\n", "\n")
	},
}

// endingVariators vary the trailing whitespace of a source text.
var endingVariators = []func(string) string{
	func(content string) string { return trimEnd(content) },
	func(content string) string { return trimEnd(content) + "\n" },
	func(content string) string { return trimEnd(content) + "\r\n" },
	func(content string) string { return content + "\n" },
	func(content string) string { return content + "\r\n" },
}

// trimEnd removes trailing whitespace, including byte order marks.
func trimEnd(content string) string {
	return strings.TrimRightFunc(content, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
}

// SourceVariation is a set of source texts where every file was transformed by the same variation.
type SourceVariation struct {
	// Key identifies the variation as "<content variator>.<ending variator>", or "original".
	Key string

	// Sources maps each path to its varied text.
	Sources map[string]string
}

// GenerateVariations returns the original sources followed by every combination of content and ending variation,
// applied uniformly to all files.
func GenerateVariations(sources map[string]string) []SourceVariation {
	variations := []SourceVariation{{Key: originalVariation, Sources: sources}}
	for c, contentVariator := range contentVariators {
		for e, endingVariator := range endingVariators {
			varied := make(map[string]string, len(sources))
			for path, content := range sources {
				varied[path] = endingVariator(contentVariator(content))
			}
			variations = append(variations, SourceVariation{Key: fmt.Sprintf("%d.%d", c, e), Sources: varied})
		}
	}
	return variations
}

// MetadataVariation is a metadata document and source set whose metadata hash matches the one embedded in a
// contract's bytecode.
type MetadataVariation struct {
	Key         string
	Metadata    *types.Metadata
	MetadataRaw []byte
	Sources     map[string]string
}

// FindOriginalMetadata searches source text variations for one whose rewritten metadata document hashes to the
// metadata hash embedded in the deployed bytecode. Returns false if the bytecode carries no metadata hash or no
// variation matches.
func FindOriginalMetadata(deployedBytecode []byte, metadataRaw []byte, sources map[string]string) (*MetadataVariation, bool, error) {
	auxdata, err := types.DecodeAuxdata(deployedBytecode)
	if err != nil || auxdata == nil {
		return nil, false, nil
	}
	ipfsHash, hasIpfs := auxdata.Ipfs()
	bzzr1Hash, hasBzzr1 := auxdata.Bzzr1()
	bzzr0Hash, hasBzzr0 := auxdata.Bzzr0()
	if !hasIpfs && !hasBzzr1 && !hasBzzr0 {
		return nil, false, nil
	}

	document, err := types.UnmarshalMetadataDocument(metadataRaw)
	if err != nil {
		return nil, false, err
	}
	metadataSources, _ := document["sources"].(map[string]any)

	for _, variation := range GenerateVariations(sources) {
		candidate, err := rewriteMetadataSources(document, metadataSources, variation.Sources)
		if err != nil {
			return nil, false, err
		}
		serialized, err := types.MarshalMetadataDocument(candidate)
		if err != nil {
			return nil, false, err
		}

		matched := false
		if hasIpfs {
			candidateHash, err := hashing.IpfsHash(serialized)
			if err != nil {
				return nil, false, err
			}
			matched = candidateHash == ipfsHash
		}
		if !matched && hasBzzr1 {
			matched = hashing.SwarmHashBzzr1(serialized) == bzzr1Hash
		}
		if !matched && hasBzzr0 {
			matched = hashing.SwarmHashBzzr0(serialized) == bzzr0Hash
		}
		if !matched {
			continue
		}

		metadata, err := types.ParseMetadata(serialized)
		if err != nil {
			return nil, false, err
		}
		return &MetadataVariation{
			Key:         variation.Key,
			Metadata:    metadata,
			MetadataRaw: serialized,
			Sources:     variation.Sources,
		}, true, nil
	}
	return nil, false, nil
}

// rewriteMetadataSources returns a copy of the metadata document whose sources section only lists the varied files
// known to the metadata, with hashes, embedded content and URLs recomputed from the varied text.
func rewriteMetadataSources(document map[string]any, metadataSources map[string]any, varied map[string]string) (map[string]any, error) {
	candidate := make(map[string]any, len(document))
	for k, v := range document {
		candidate[k] = v
	}

	paths := make([]string, 0, len(varied))
	for path := range varied {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	sources := make(map[string]any, len(varied))
	for _, path := range paths {
		original, ok := metadataSources[path].(map[string]any)
		if !ok {
			continue
		}
		content := varied[path]

		source := make(map[string]any, len(original))
		for k, v := range original {
			source[k] = v
		}
		source["keccak256"] = hashing.Keccak256Hex([]byte(content))
		if _, ok := source["content"]; ok {
			source["content"] = content
		}
		if urls, ok := original["urls"].([]any); ok {
			rewritten := make([]any, len(urls))
			for i, url := range urls {
				s, _ := url.(string)
				switch {
				case strings.Contains(s, "dweb:/ipfs/"):
					cid, err := hashing.IpfsHash([]byte(content))
					if err != nil {
						return nil, errors.WithStack(err)
					}
					rewritten[i] = "dweb:/ipfs/" + cid
				case strings.Contains(s, "bzz-raw://"):
					rewritten[i] = "bzz-raw://" + common.Bytes2Hex(hashing.SwarmHashBzzr1([]byte(content)).Bytes())
				default:
					rewritten[i] = ""
				}
			}
			source["urls"] = rewritten
		}
		sources[path] = source
	}
	candidate["sources"] = sources
	return candidate, nil
}
