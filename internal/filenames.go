package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const ModeProduction = "production"

const (
	extJS       = "js"
	extCSS      = "css"
	extCSSChunk = "chunk.css"
	extChunk    = "chunk.js"
	extWorker   = "worker.js"
	extAsset    = "[ext]"
)

// hashedNames reports whether output files carry a content hash.
func hashedNames(mode string, skipHashes bool) bool {
	return mode == ModeProduction && !skipHashes
}

func filenamePattern(hashed bool, ext string) string {
	if hashed {
		return "[hash].[name]." + ext
	}
	return "[name]." + ext
}

// pickFilename returns the user supplied pattern, or the computed one when none
// was given. An empty pattern counts as none.
func pickFilename(given string, hashed bool, ext string) string {
	if given != "" {
		return given
	}
	return filenamePattern(hashed, ext)
}

// esbuildNames converts a pattern into esbuild's naming template, which has no
// extension and spells the asset extension out itself.
func esbuildNames(pattern string, ext string) string {
	name := strings.TrimSuffix(pattern, "."+ext)
	return strings.TrimSuffix(name, ".[ext]")
}

// expandFilename fills [name], [hash] and [ext] for files the runner writes itself.
func expandFilename(pattern, name, ext string, contents []byte) string {
	replacer := strings.NewReplacer(
		"[name]", name,
		"[hash]", contentHash(contents),
		"[contenthash]", contentHash(contents),
		"[ext]", ext,
	)
	return replacer.Replace(pattern)
}

func contentHash(contents []byte) string {
	sum := sha256.Sum256(contents)
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:8]
}
