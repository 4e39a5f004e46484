package cli

func (c *RootCommand) initFlags() {
	c.PersistentFlags().StringVarP(
		&c.Options.ConfigPath,
		"config",
		"c",
		"",
		"Path to the .env configuration file",
	)
	c.PersistentFlags().StringVarP(
		&c.Options.DataPath,
		"data",
		"d",
		"",
		"Database path without suffix, overrides MINIDB_DATA_PATH",
	)
}
