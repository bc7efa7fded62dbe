package internal

// NodeOptions is the validated and defaulted form of the options for server-side builds.
type NodeOptions struct {
	RootFolder    string
	OutputFolder  string
	Mode          string
	Entry         map[string][]string
	Sourcemaps    bool
	SkipHashes    bool
	SkipReset     bool
	CopyPatterns  []CopyPattern
	JSFilename    string
	ChunkFilename string
	Externals     []string
	NodeVersion   string
}

var nodeSchema = schema[NodeOptions]{
	{"rootFolder", expectAbsolutePath, constant(""), isAbsolutePath,
		func(o *NodeOptions, v any) error { o.RootFolder = v.(string); return nil }},
	{"outputFolder", expectAbsolutePath, constant(""), isAbsolutePath,
		func(o *NodeOptions, v any) error { o.OutputFolder = v.(string); return nil }},
	{"mode", expectNonEmptyString, constant(ModeProduction), isNonEmptyString,
		func(o *NodeOptions, v any) error { o.Mode = v.(string); return nil }},
	{"entry", expectEntry, defaultEntry, isEntry,
		func(o *NodeOptions, v any) error { o.Entry = asEntry(v); return nil }},
	{"sourcemaps", expectBool, constant(true), isBool,
		func(o *NodeOptions, v any) error { o.Sourcemaps = v.(bool); return nil }},
	// server bundles are loaded by path, so they stay unhashed unless asked
	{"skipHashes", expectBool, constant(true), isBool,
		func(o *NodeOptions, v any) error { o.SkipHashes = v.(bool); return nil }},
	{"skipReset", expectBool, constant(false), isBool,
		func(o *NodeOptions, v any) error { o.SkipReset = v.(bool); return nil }},
	{"copyPatterns", expectObjectList, func() any { return []CopyPattern{} }, isObjectList,
		func(o *NodeOptions, v any) (err error) { o.CopyPatterns, err = decodeObjects[CopyPattern](v); return }},
	// an absent, nil or empty filename option means the computed pattern
	{"jsFilename", expectOptionalString, constant[any](nil), isOptionalString,
		func(o *NodeOptions, v any) error { o.JSFilename = asOptionalString(v); return nil }},
	{"chunkFilename", expectOptionalString, constant[any](nil), isOptionalString,
		func(o *NodeOptions, v any) error { o.ChunkFilename = asOptionalString(v); return nil }},
	{"externals", expectList, stringList(), isList,
		func(o *NodeOptions, v any) error { o.Externals = asStrings(v); return nil }},
	{"nodeVersion", expectNonEmptyString, constant("18"), isNonEmptyString,
		func(o *NodeOptions, v any) error { o.NodeVersion = v.(string); return nil }},
}

// NodeOptionNames lists every option GetNodeConfig understands.
func NodeOptionNames() []string {
	return nodeSchema.names()
}

func ParseNodeOptions(opts Options) (NodeOptions, error) {
	o, err := nodeSchema.decode(opts)
	if err != nil {
		return o, err
	}
	o.RootFolder, o.OutputFolder, err = resolveFolders(o.RootFolder, o.OutputFolder)
	return o, err
}

// GetNodeConfig builds the configuration for a Node.js bundle.
func GetNodeConfig(opts Options) (*Configuration, error) {
	o, err := ParseNodeOptions(opts)
	if err != nil {
		return nil, err
	}
	hashed := hashedNames(o.Mode, o.SkipHashes)

	config := &Configuration{
		Target:  TargetNode,
		Mode:    o.Mode,
		Context: o.RootFolder,
		Entry:   o.Entry,
		Devtool: devtool(o.Sourcemaps),
		Output: Output{
			Path:          o.OutputFolder,
			Filename:      pickFilename(o.JSFilename, hashed, extJS),
			ChunkFilename: pickFilename(o.ChunkFilename, hashed, extChunk),
			LibraryTarget: "commonjs2",
		},
		Resolve:   Resolve{Extensions: []string{".ts", ".js", ".json"}},
		Externals: o.Externals,
		ESTarget:  "node" + o.NodeVersion,
		Plugins:   []Plugin{},
	}

	var rules []Rule
	if o.Sourcemaps {
		rules = append(rules, sourceMapRule())
	}
	rules = append(rules, Rule{
		Test:       `\.ts$`,
		Extensions: []string{".ts"},
		Use:        []Use{typescriptUse(o.RootFolder, false)},
	})
	config.Module.Rules = rules

	if !o.SkipReset {
		config.Plugins = append(config.Plugins, cleanPlugin())
	}
	if len(o.CopyPatterns) > 0 {
		config.Plugins = append(config.Plugins, copyPlugin(o.CopyPatterns))
	}
	return config, nil
}
