package promotion

import (
	"errors"
	"fmt"

	"promoter/internal/build"

	"github.com/beevik/etree"
)

// InnerDependency is a dependency that was itself produced by the staged
// build. Its revision is rewritten along with the descriptor that names it.
type InnerDependency struct {
	Organization string
	Module       string
	Revision     string
}

// DescriptorRewriter turns a staged module descriptor into its released form.
// Only elements it rewrites change; the rest of the document is written back
// as read.
type DescriptorRewriter struct {
	Resolve VersionResolver
}

// Rewrite rewrites an Ivy or POM descriptor
func (w DescriptorRewriter) Rewrite(kind build.Kind, text string, inner []InnerDependency, a *Attempt) (string, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromString(text); err != nil {
		return "", fmt.Errorf("parse %s descriptor: %w", kind, err)
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("%s descriptor has no root element", kind)
	}

	var err error
	switch kind {
	case build.KindIvy:
		err = w.rewriteIvy(root, inner, a)
	case build.KindPOM:
		err = w.rewritePOM(root, inner, a)
	default:
		err = fmt.Errorf("%s artifacts have no descriptor", kind)
	}
	if err != nil {
		return "", err
	}

	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("write %s descriptor: %w", kind, err)
	}
	return out, nil
}

func (w DescriptorRewriter) rewriteIvy(root *etree.Element, inner []InnerDependency, a *Attempt) error {
	if root.Tag != "ivy-module" {
		return fmt.Errorf("unexpected ivy root element <%s>", root.Tag)
	}
	info := root.SelectElement("info")
	if info == nil {
		return errors.New("ivy descriptor has no <info> element")
	}

	if rev := info.SelectAttr("revision"); rev != nil {
		rev.Value = w.Resolve(rev.Value, a.Snapshot)
	}
	info.CreateAttr("status", "release")
	info.CreateAttr("publication", a.PublicationDate())

	for _, dep := range root.FindElements("./dependencies/dependency") {
		d, ok := findInner(inner, dep.SelectAttrValue("org", ""), dep.SelectAttrValue("name", ""))
		if !ok {
			continue
		}
		rev := dep.SelectAttrValue("rev", d.Revision)
		dep.CreateAttr("rev", w.Resolve(rev, a.Snapshot))
	}
	return nil
}

func (w DescriptorRewriter) rewritePOM(root *etree.Element, inner []InnerDependency, a *Attempt) error {
	if root.Tag != "project" {
		return fmt.Errorf("unexpected pom root element <%s>", root.Tag)
	}

	if v := root.SelectElement("version"); v != nil {
		v.SetText(w.Resolve(v.Text(), a.Snapshot))
	}

	deps := root.FindElements("./dependencies/dependency")
	deps = append(deps, root.FindElements("./dependencyManagement/dependencies/dependency")...)
	for _, dep := range deps {
		d, ok := findInner(inner, childText(dep, "groupId"), childText(dep, "artifactId"))
		if !ok {
			continue
		}

		v := dep.SelectElement("version")
		if v != nil && v.Text() != d.Revision {
			continue
		}
		rev := d.Revision
		if v == nil {
			v = dep.CreateElement("version")
		} else {
			rev = v.Text()
		}
		v.SetText(w.Resolve(rev, a.Snapshot))
	}
	return nil
}

func findInner(inner []InnerDependency, org, module string) (InnerDependency, bool) {
	for _, d := range inner {
		if d.Organization == org && d.Module == module {
			return d, true
		}
	}
	return InnerDependency{}, false
}

func childText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}
