// The config package encapsulates configuration for the vesta evaluator
// command.
//
// The evaluator is expected to store caches and any runtime information
// within a dedicated base directory. When loading
// the configuration, the first and only argument is the path to the
// base directory rather than the path to the configuration file. The
// designated directory is expected to contain a file called 'config'
// of "key value" lines whose keys map onto the C struct of this package.  Many
// paths are derived from the base directory and exposed as methods of
// C, e.g., log file paths, cache directory path, staging area, etc.
package config
