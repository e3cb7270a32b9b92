// Package buildsys loads task definitions from Starlark scripts (tasks.star) and turns them into
// taskgraph tasks. Shell snippets run on mvdan.cc/sh so scripts behave the same on every platform.
//
// A script declares options in its global scope and its tasks inside a configure() function:
//
//	browser = option("browser", "PhantomJS", "browser used by the test tasks")
//
//	def configure():
//	    task(short = "clean", cmds = [clean("dist")])
//	    task(short = "minify", deps = ["typescript"], cmds = [bundle("lib/index.js", "dist", minify = True)])
package buildsys
