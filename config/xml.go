package config

import "encoding/xml"

type xmlConfiguration struct {
	XMLName            xml.Name                  `xml:"configuration"`
	Properties         *xmlPropertiesElem        `xml:"properties"`
	Settings           *xmlSettingsElem          `xml:"settings"`
	TypeAliases        *xmlTypeAliasesElem       `xml:"typeAliases"`
	Environments       *xmlEnvironmentsElem      `xml:"environments"`
	DatabaseIdProvider *xmlDatabaseIdProviderElem `xml:"databaseIdProvider"`
	Mappers            *xmlMappersElem           `xml:"mappers"`
}

type xmlProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlPropertiesElem struct {
	Resource string        `xml:"resource,attr"`
	URL      string        `xml:"url,attr"`
	Property []xmlProperty `xml:"property"`
}

type xmlSettingsElem struct {
	Setting []xmlProperty `xml:"setting"`
}

type xmlTypeAliasesElem struct {
	TypeAlias []xmlTypeAlias `xml:"typeAlias"`
}

type xmlTypeAlias struct {
	Alias string `xml:"alias,attr"`
	Type  string `xml:"type,attr"`
}

type xmlEnvironmentsElem struct {
	Default     string           `xml:"default,attr"`
	Environment []xmlEnvironment `xml:"environment"`
}

type xmlEnvironment struct {
	ID                 string                `xml:"id,attr"`
	TransactionManager xmlTransactionManager `xml:"transactionManager"`
	DataSource         xmlDataSource         `xml:"dataSource"`
}

type xmlTransactionManager struct {
	Type string `xml:"type,attr"`
}

type xmlDataSource struct {
	Type     string        `xml:"type,attr"`
	Property []xmlProperty `xml:"property"`
}

type xmlDatabaseIdProviderElem struct {
	Type     string        `xml:"type,attr"`
	Property []xmlProperty `xml:"property"`
}

type xmlMappersElem struct {
	Mapper []xmlMapperRef `xml:"mapper"`
}

type xmlMapperRef struct {
	Resource string `xml:"resource,attr"`
	URL      string `xml:"url,attr"`
}

// ---- mapper document -----------------------------------------------------

type xmlMapperDoc struct {
	XMLName   xml.Name       `xml:"mapper"`
	Namespace string         `xml:"namespace,attr"`
	CacheRef  *xmlCacheRef   `xml:"cache-ref"`
	Cache     *xmlCache      `xml:"cache"`
	ResultMap []xmlResultMap `xml:"resultMap"`
	Sql       []xmlSQL       `xml:"sql"`
	Select    []xmlStatement `xml:"select"`
	Insert    []xmlStatement `xml:"insert"`
	Update    []xmlStatement `xml:"update"`
	Delete    []xmlStatement `xml:"delete"`
}

type xmlCacheRef struct {
	Namespace string `xml:"namespace,attr"`
}

type xmlCache struct {
	Type          string        `xml:"type,attr"`
	Eviction      string        `xml:"eviction,attr"`
	FlushInterval string        `xml:"flushInterval,attr"`
	Size          string        `xml:"size,attr"`
	ReadOnly      string        `xml:"readOnly,attr"`
	Blocking      string        `xml:"blocking,attr"`
	Property      []xmlProperty `xml:"property"`
}

type xmlSQL struct {
	ID       string `xml:"id,attr"`
	InnerXML string `xml:",innerxml"`
}

type xmlStatement struct {
	ID               string `xml:"id,attr"`
	ParameterType    string `xml:"parameterType,attr"`
	ResultType       string `xml:"resultType,attr"`
	ResultMap        string `xml:"resultMap,attr"`
	UseCache         string `xml:"useCache,attr"`
	FlushCache       string `xml:"flushCache,attr"`
	StatementType    string `xml:"statementType,attr"`
	FetchSize        string `xml:"fetchSize,attr"`
	Timeout          string `xml:"timeout,attr"`
	DatabaseID       string `xml:"databaseId,attr"`
	KeyProperty      string `xml:"keyProperty,attr"`
	KeyColumn        string `xml:"keyColumn,attr"`
	UseGeneratedKeys string `xml:"useGeneratedKeys,attr"`
	InnerXML         string `xml:",innerxml"`
}

type xmlSelectKey struct {
	KeyProperty string `xml:"keyProperty,attr"`
	ResultType  string `xml:"resultType,attr"`
	Order       string `xml:"order,attr"`
	InnerXML    string `xml:",innerxml"`
}

type xmlResultField struct {
	Property    string `xml:"property,attr"`
	Column      string `xml:"column,attr"`
	JavaType    string `xml:"javaType,attr"`
	JdbcType    string `xml:"jdbcType,attr"`
	TypeHandler string `xml:"typeHandler,attr"`
}

type xmlConstructor struct {
	IDArg []xmlResultField `xml:"idArg"`
	Arg   []xmlResultField `xml:"arg"`
}

type xmlAssociation struct {
	xmlResultField
	ResultMap    string `xml:"resultMap,attr"`
	Select       string `xml:"select,attr"`
	ColumnPrefix string `xml:"columnPrefix,attr"`
}

type xmlCollection struct {
	xmlAssociation
	OfType string `xml:"ofType,attr"`
}

type xmlDiscriminatorCase struct {
	Value     string `xml:"value,attr"`
	ResultMap string `xml:"resultMap,attr"`
}

type xmlDiscriminator struct {
	Column   string                 `xml:"column,attr"`
	JavaType string                 `xml:"javaType,attr"`
	Case     []xmlDiscriminatorCase `xml:"case"`
}

type xmlResultMap struct {
	ID            string             `xml:"id,attr"`
	Type          string             `xml:"type,attr"`
	Extends       string             `xml:"extends,attr"`
	AutoMapping   string             `xml:"autoMapping,attr"`
	Constructor   *xmlConstructor    `xml:"constructor"`
	ID_           []xmlResultField   `xml:"id"`
	Result        []xmlResultField   `xml:"result"`
	Association   []xmlAssociation   `xml:"association"`
	Collection    []xmlCollection    `xml:"collection"`
	Discriminator *xmlDiscriminator  `xml:"discriminator"`
}
