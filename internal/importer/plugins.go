package importer

import (
	"context"

	"github.com/Masterminds/semver/v3"

	"github.com/courseforge/courseforge/internal/errors"
	"github.com/courseforge/courseforge/internal/plugin"
)

// stageResolvePlugins resolves the package's plugin references and performs
// the installs and updates the settings allow. Beyond the resolver's
// partition, the import distinguishes skips (present and not newer, or
// updates disabled) and block-and-warn (present but managed externally).
func (im *Importer) stageResolvePlugins(ctx context.Context, is *importState) error {
	required := make([]string, 0, len(is.manifest.Plugins))
	for _, ref := range is.manifest.Plugins {
		required = append(required, ref.Name)
	}
	if len(required) == 0 {
		is.job.Report.Infof("package references no plugins")
		return nil
	}

	res, err := plugin.Resolve(ctx, required, im.registry, plugin.ResolveOptions{
		AllowInstall: is.job.Settings.ImportPlugins,
		AllowUpdate:  is.job.Settings.UpdatePlugins,
	})
	if err != nil {
		// Missing required plugins are fatal only when content import is
		// also requested; otherwise the import degrades to a warning.
		kind := errors.GetKind(err)
		if !is.job.Settings.ImportContent &&
			(kind == errors.KindMissingDependency || kind == errors.KindIncompatibleDependency) {
			is.job.Report.Warnf("plugin resolution incomplete, content import not requested: %v", err)
			return nil
		}
		return err
	}
	is.resolution = res

	installed := map[string]*plugin.Descriptor{}
	for _, d := range res.Satisfied {
		found, err := im.registry.Find(ctx, plugin.Filter{Name: d.Name})
		if err != nil {
			return err
		}
		if len(found) > 0 {
			installed[d.Name] = found[0]
		}
	}

	toInstall := map[string]bool{}
	for _, d := range res.Install {
		toInstall[d.Name] = true
	}
	for _, d := range res.Update {
		toInstall[d.Name] = true
	}

	// Package versions newer than the installed ones are update candidates
	// even when every range is already satisfied.
	for _, ref := range is.manifest.Plugins {
		inst, ok := installed[ref.Name]
		if !ok || toInstall[ref.Name] {
			continue
		}
		newer, err := versionNewer(ref.Version, inst.Version)
		if err != nil {
			is.job.Report.Warnf("plugin %s: package version %q unparseable, keeping installed %s",
				ref.Name, ref.Version, inst.Version)
			continue
		}
		switch {
		case !newer:
			is.job.Report.Infof("plugin %s already satisfied at %s", ref.Name, inst.Version)
		case inst.ManagedExternally:
			// Managed by a path this import must not silently override.
			is.job.Report.Warnf("plugin %s %s is managed externally; update to %s blocked",
				ref.Name, inst.Version, ref.Version)
		case !is.job.Settings.UpdatePlugins:
			is.job.Report.Infof("plugin %s update to %s skipped, updates disabled", ref.Name, ref.Version)
		default:
			toInstall[ref.Name] = true
		}
	}

	for name, d := range installed {
		if !toInstall[name] {
			is.versions[name] = d.Version
		}
	}

	if is.job.Settings.DryRun {
		for name := range toInstall {
			is.job.Report.Infof("dry run: would install or update plugin %s", name)
		}
		return nil
	}

	if len(toInstall) > 0 {
		names := make([]string, 0, len(toInstall))
		for name := range toInstall {
			names = append(names, name)
		}
		descs, err := im.registry.Install(ctx, names)
		for _, d := range descs {
			// Updates replace the prior registration; only uninstall fresh
			// installs on rollback.
			if installed[d.Name] == nil {
				is.installedIDs = append(is.installedIDs, d.ID)
			}
			is.versions[d.Name] = d.Version
		}
		if err != nil {
			return err
		}
		im.recorder.IncPluginsInstalled(len(descs))
		is.job.Report.Infof("installed or updated %d plugins", len(descs))
	}
	return nil
}

// versionNewer reports whether a is strictly newer than b.
func versionNewer(a, b string) (bool, error) {
	av, err := semver.NewVersion(a)
	if err != nil {
		return false, err
	}
	bv, err := semver.NewVersion(b)
	if err != nil {
		return false, err
	}
	return av.GreaterThan(bv), nil
}
