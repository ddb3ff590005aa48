package source

// The two named operations issued against the source platform. Field
// selections match the decode targets in types.go; type-specific values
// come in through the inline fragments on StixCyberObservable.

const observablesQuery = `
query StixCyberObservablesWithDetails($types: [String], $search: String, $count: Int!, $cursor: ID, $orderBy: StixCyberObservablesOrdering, $orderMode: OrderingMode, $filters: FilterGroup) {
  stixCyberObservables(types: $types, search: $search, first: $count, after: $cursor, orderBy: $orderBy, orderMode: $orderMode, filters: $filters) {
    edges {
      node {
        id
        standard_id
        entity_type
        observable_value
        spec_version
        created_at
        updated_at
        x_opencti_score
        x_opencti_description
        x_opencti_stix_ids
        createdBy {
          id
          name
          entity_type
        }
        objectMarking {
          id
          definition_type
          definition
          x_opencti_order
          x_opencti_color
        }
        objectLabel {
          id
          value
          color
        }
        creators {
          id
          name
        }
        externalReferences {
          edges {
            node {
              id
              source_name
              url
              description
            }
          }
        }
        ... on IPv4Addr { value }
        ... on IPv6Addr { value }
        ... on DomainName { value }
        ... on Url { value }
        ... on EmailAddr { value display_name }
        ... on MacAddr { value }
        ... on AutonomousSystem { number rir }
        ... on Process { pid command_line }
        ... on UserAccount { account_login display_name }
        ... on Hostname { value }
        ... on StixFile { name }
        ... on Software { name }
        __typename
      }
      cursor
    }
    pageInfo {
      endCursor
      hasNextPage
      globalCount
    }
  }
}
`

const indicatorsQuery = `
query IndicatorsWithDetails($search: String, $count: Int!, $cursor: ID, $filters: FilterGroup, $orderBy: IndicatorsOrdering, $orderMode: OrderingMode) {
  indicators(search: $search, first: $count, after: $cursor, filters: $filters, orderBy: $orderBy, orderMode: $orderMode) {
    edges {
      node {
        id
        standard_id
        entity_type
        spec_version
        name
        pattern
        pattern_type
        description
        confidence
        revoked
        valid_from
        valid_until
        created_at
        updated_at
        indicator_types
        x_opencti_score
        x_opencti_detection
        x_opencti_main_observable_type
        x_mitre_platforms
        x_opencti_stix_ids
        createdBy {
          id
          name
          entity_type
        }
        objectMarking {
          id
          definition_type
          definition
          x_opencti_order
          x_opencti_color
        }
        objectLabel {
          id
          value
          color
        }
        creators {
          id
          name
        }
        externalReferences {
          edges {
            node {
              id
              source_name
              url
              description
            }
          }
        }
        killChainPhases {
          id
          kill_chain_name
          phase_name
          x_opencti_order
        }
        observables(first: 100) {
          edges {
            node {
              id
              standard_id
              entity_type
              observable_value
            }
          }
        }
        __typename
      }
      cursor
    }
    pageInfo {
      endCursor
      hasNextPage
      globalCount
    }
  }
}
`
