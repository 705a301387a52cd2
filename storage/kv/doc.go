// Package kv provides an interface for implementing
// kv drivers that can be used to build more complex storage
// interfaces.
//
// A kv plugin is a factory for root store instances. A root store
// contains zero or more named stores. Each store is an ordered map
// from byte keys to byte values and operates independently from
// other stores. Transactions for different stores are completely
// independent from each other. Within a store transactions are
// strictly serializable.
//
//	Root Store
//	  Store "meta"
//	    key1: abc
//	    key2: def
//	  Store "data"
//	    keyN: aaa
//
// Each store acts like a namespace, allowing different components that
// require a kv storage interface to have their own store without needing
// to worry about stepping on the toes of other components.
package kv
